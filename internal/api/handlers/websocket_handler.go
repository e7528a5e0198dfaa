package handlers

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evaluation"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/middleware/validation"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/sqlite"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

// writeWait bounds every frame write so a stalled client cannot hold
// up the evaluation workers publishing progress.
const writeWait = 10 * time.Second

// subscriber wraps a connection with a write lock. The progress fan-out
// and the per-connection reader run on different goroutines.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// WebSocketHandler streams evaluation progress to subscribers keyed by
// evaluation id. The queue's progress callback feeds Publish.
type WebSocketHandler struct {
	db *sqlite.Client

	mu   sync.RWMutex
	subs map[string]map[*subscriber]bool
}

func NewWebSocketHandler(db *sqlite.Client) *WebSocketHandler {
	return &WebSocketHandler{
		db:   db,
		subs: make(map[string]map[*subscriber]bool),
	}
}

// HandleConnection serves one progress stream. The current evaluation
// state is sent first, then one frame per settled requirement and a
// terminal completed/failed frame.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	evaluationID := c.Params("id")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("evaluation_id", evaluationID))
	}()

	if !validation.ValidID(evaluationID) {
		c.WriteJSON(map[string]interface{}{
			"type":  "error",
			"error": "Invalid evaluation id",
		})
		return
	}

	eval, err := h.db.GetEvaluation(evaluationID)
	if err != nil {
		c.WriteJSON(map[string]interface{}{
			"type":  "error",
			"error": "Evaluation not found",
		})
		return
	}

	logger.Info("WebSocket connection established", zap.String("evaluation_id", evaluationID))

	sub := &subscriber{conn: c}
	h.register(evaluationID, sub)
	defer h.unregister(evaluationID, sub)

	state := map[string]interface{}{
		"type":          "state",
		"evaluation_id": eval.ID,
		"doc_id":        eval.DocID,
		"status":        eval.Status,
		"done":          eval.RequirementsDone,
		"total":         eval.RequirementsTotal,
	}
	if eval.Error != "" {
		state["error"] = eval.Error
	}
	if err := sub.writeJSON(state); err != nil {
		logger.Warn("Failed to send evaluation state", zap.String("evaluation_id", evaluationID), zap.Error(err))
		return
	}

	// Drain inbound messages until the client disconnects.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}

// Publish fans one progress frame out to the evaluation's subscribers.
// A subscriber whose write fails is dropped and its connection closed,
// which also unblocks that connection's reader.
func (h *WebSocketHandler) Publish(p evaluation.Progress) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs[p.EvaluationID]))
	for sub := range h.subs[p.EvaluationID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	msgType := "progress"
	if p.RequirementID == "" {
		msgType = p.Status
	}

	msg := map[string]interface{}{
		"type":           msgType,
		"evaluation_id":  p.EvaluationID,
		"doc_id":         p.DocID,
		"requirement_id": p.RequirementID,
		"status":         p.Status,
		"done":           p.Done,
		"total":          p.Total,
	}

	for _, sub := range subs {
		if err := sub.writeJSON(msg); err != nil {
			logger.Warn("Dropping slow progress subscriber",
				zap.String("evaluation_id", p.EvaluationID), zap.Error(err))
			sub.conn.Close()
			h.unregister(p.EvaluationID, sub)
		}
	}
}

func (h *WebSocketHandler) register(evaluationID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[evaluationID] == nil {
		h.subs[evaluationID] = make(map[*subscriber]bool)
	}
	h.subs[evaluationID][sub] = true
}

func (h *WebSocketHandler) unregister(evaluationID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs[evaluationID], sub)
	if len(h.subs[evaluationID]) == 0 {
		delete(h.subs, evaluationID)
	}
}
