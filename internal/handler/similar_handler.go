package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/middleware"
	"github.com/arturoeanton/go-deviation-rag/internal/retrieval"
)

// SimilarHandler exposes raw similarity search over indexed answers.
type SimilarHandler struct {
	similarity  *retrieval.SimilarityService
	defaultTopK int
}

// NewSimilarHandler creates a similarity handler.
func NewSimilarHandler(similarity *retrieval.SimilarityService, defaultTopK int) *SimilarHandler {
	if defaultTopK <= 0 {
		defaultTopK = retrieval.DefaultTopK
	}
	return &SimilarHandler{similarity: similarity, defaultTopK: defaultTopK}
}

// Register sets up similarity routes.
func (h *SimilarHandler) Register(router fiber.Router) {
	router.Post("/similar", h.Search)
}

// Search returns the top matches per query and the union of source deviations.
func (h *SimilarHandler) Search(c fiber.Ctx) error {
	var body struct {
		Query   string   `json:"query"`
		Queries []string `json:"queries"`
		TopK    *int     `json:"top_k"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	queries := body.Queries
	if body.Query != "" {
		queries = append([]string{body.Query}, queries...)
	}
	if len(queries) == 0 {
		return badRequest(c, "query or queries is required")
	}
	topK := h.defaultTopK
	if body.TopK != nil {
		topK = *body.TopK
	}
	middleware.SetAuditAction(c, domain.AuditActionSimilarity, "")

	results, err := h.similarity.FindSimilar(c.Context(), queries, topK)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"results":       results,
		"deviation_ids": retrieval.UnionRecordIDs(results, domain.MetaSummaryID),
	})
}
