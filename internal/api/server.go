// Package api exposes the token-granular session surface over HTTP. It is
// a thin transport: every operation maps one-to-one onto a Model or
// Session call and no generation policy lives here.
package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/logits"
	"github.com/samcharles93/loom/internal/session"
)

type Server struct {
	model   *session.Model
	store   *SequenceStore
	metrics *Metrics
	log     logger.Logger
}

func NewServer(model *session.Model, store *SequenceStore, metrics *Metrics, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{
		model:   model,
		store:   store,
		metrics: metrics,
		log:     log.With("component", "api"),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/model", s.handleModelInfo)
	e.GET("/v1/model/tokens", s.handleTokenMetadata)
	e.POST("/v1/tokenize", s.handleTokenize)
	e.GET("/v1/tokens/:id", s.handleTokenInfo)

	e.POST("/v1/sequences", s.handleCreateSequence)
	e.GET("/v1/sequences/:id", s.handleGetSequence)
	e.DELETE("/v1/sequences/:id", s.handleDestroySequence)
	e.POST("/v1/sequences/:id/advance", s.handleAdvance)
	e.GET("/v1/sequences/:id/logits", s.handleLogits)
	e.POST("/v1/sequences/:id/sample", s.handleSample)
	e.POST("/v1/sequences/:id/surprise", s.handleSurprise)
	e.POST("/v1/sequences/:id/clone", s.handleClone)

	e.GET("/metrics", s.metrics.Handler())
}

func (s *Server) handleModelInfo(c *echo.Context) error {
	return c.JSON(http.StatusOK, ModelInfo{
		VocabSize:        s.model.VocabSize(),
		MaxContextTokens: s.model.MaxContextTokens(),
		EOSTokenID:       s.model.EOSTokenID(),
	})
}

func (s *Server) handleTokenMetadata(c *echo.Context) error {
	blob, err := s.model.TokenMetadata()
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.Blob(http.StatusOK, "application/octet-stream", blob)
}

func (s *Server) handleTokenize(c *echo.Context) error {
	req, err := decodeJSON[TokenizeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	ids, err := s.model.TokenizeExact(req.Text, req.AllowSpecial)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, TokenizeResponse{Tokens: ids})
}

func (s *Server) handleTokenInfo(c *echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return writeBadRequest(c, "token id must be an integer")
	}
	name, err := s.model.TokenName(id)
	if err != nil {
		return writeDomainError(c, err)
	}
	text, err := s.model.TokenBytes(id)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, TokenInfo{
		ID:      id,
		Name:    name,
		Text:    string(text),
		Special: len(text) == 0,
	})
}

func (s *Server) handleCreateSequence(c *echo.Context) error {
	req, err := decodeJSON[CreateSequenceRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	seq := s.model.NewSequence(req.Messages)
	s.store.Add(seq)
	s.metrics.sequencesCreated.Inc()
	s.log.Debug("sequence created", "id", seq.ID().String())
	return c.JSON(http.StatusCreated, s.snapshot(seq))
}

func (s *Server) handleGetSequence(c *echo.Context) error {
	seq, errResp := s.lookup(c)
	if seq == nil {
		return errResp
	}
	return c.JSON(http.StatusOK, s.snapshot(seq))
}

func (s *Server) handleDestroySequence(c *echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return writeBadRequest(c, "sequence id must be a uuid")
	}
	seq, ok := s.store.Remove(id)
	if !ok {
		return writeNotFound(c, "no such sequence")
	}
	if err := seq.Destroy(); err != nil {
		return writeDomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAdvance(c *echo.Context) error {
	seq, errResp := s.lookup(c)
	if seq == nil {
		return errResp
	}
	req, err := decodeJSON[AdvanceRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := seq.Advance(c.Request().Context(), req.Append, req.Backtrack); err != nil {
		return writeDomainError(c, err)
	}
	s.metrics.tokensAdvanced.Add(float64(len(req.Append)))
	return c.JSON(http.StatusOK, s.snapshot(seq))
}

func (s *Server) handleLogits(c *echo.Context) error {
	seq, errResp := s.lookup(c)
	if seq == nil {
		return errResp
	}
	vals, err := seq.Logits(c.Request().Context())
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, LogitsResponse{Logits: vals})
}

func (s *Server) handleSample(c *echo.Context) error {
	seq, errResp := s.lookup(c)
	if seq == nil {
		return errResp
	}
	req, err := decodeJSON[SampleRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	opts := session.SampleOptions{
		Temperature: req.Temperature,
		TopK:        req.TopK,
		Seed:        req.Seed,
	}
	if req.Mask != nil {
		opts.Mask = logits.BitsetFromWords(req.Mask, s.model.VocabSize())
	}
	tok, err := seq.Sample(c.Request().Context(), opts)
	if err != nil {
		if errors.Is(err, logits.ErrNoCandidates) {
			return writeBadRequest(c, err.Error())
		}
		return writeDomainError(c, err)
	}
	s.metrics.samplesDrawn.Inc()
	return c.JSON(http.StatusOK, SampleResponse{Token: tok})
}

func (s *Server) handleSurprise(c *echo.Context) error {
	seq, errResp := s.lookup(c)
	if seq == nil {
		return errResp
	}
	req, err := decodeJSON[SurpriseRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Mask == nil {
		return writeBadRequest(c, "mask is required")
	}
	vals, err := seq.Logits(c.Request().Context())
	if err != nil {
		return writeDomainError(c, err)
	}
	v := logits.Surprise(vals, logits.BitsetFromWords(req.Mask, s.model.VocabSize()))
	resp := SurpriseResponse{Surprise: v}
	if math.IsInf(v, 1) {
		resp.Surprise = 0
		resp.Infinite = true
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleClone(c *echo.Context) error {
	seq, errResp := s.lookup(c)
	if seq == nil {
		return errResp
	}
	if _, err := seq.Clone(); err != nil {
		return writeDomainError(c, err)
	}
	// Unreachable until cloning is implemented.
	return c.NoContent(http.StatusNotImplemented)
}

// lookup resolves the :id path parameter. On failure it returns a nil
// sequence and the already-written error response.
func (s *Server) lookup(c *echo.Context) (*session.Session, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, writeBadRequest(c, "sequence id must be a uuid")
	}
	seq, ok := s.store.Get(id)
	if !ok {
		return nil, writeNotFound(c, "no such sequence")
	}
	return seq, nil
}

// snapshot builds the canonical sequence state payload.
func (s *Server) snapshot(seq *session.Session) SequenceState {
	st := SequenceState{ID: seq.ID().String(), Tokens: []int{}}
	if toks, err := seq.Tokens(); err == nil {
		st.Tokens = toks
	}
	if n, err := seq.PromptTokenCount(); err == nil {
		st.PromptTokenCount = &n
	}
	if left, err := seq.TokensLeft(); err == nil {
		st.TokensLeft = &left
	}
	return st
}
