package worker

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
)

// FileProcessingEvent задаёт тип сообщения очереди file-processing.
const FileProcessingEvent = "FILE_UPLOADED"

// DocumentProcessor подготавливает загруженный документ к печати.
type DocumentProcessor interface {
	Process(ctx context.Context, job FileJob) error
}

// LogDocumentProcessor только логирует задание; хранилище файлов подключается отдельно.
type LogDocumentProcessor struct {
	Logger *log.Entry
}

func (p LogDocumentProcessor) Process(_ context.Context, job FileJob) error {
	logger := p.Logger
	if logger == nil {
		logger = log.WithField("component", "document-processor")
	}
	logger.WithFields(log.Fields{
		"order_id": job.OrderID,
		"file_key": job.FileKey,
		"pages":    job.Pages,
	}).Info("document queued for processing")
	return nil
}

// FileProcessingHandler разбирает задания и передаёт их DocumentProcessor.
type FileProcessingHandler struct {
	processor DocumentProcessor
}

// NewFileProcessingHandler создаёт обработчик очереди file-processing.
func NewFileProcessingHandler(processor DocumentProcessor) *FileProcessingHandler {
	if processor == nil {
		processor = LogDocumentProcessor{}
	}
	return &FileProcessingHandler{processor: processor}
}

// Handle реализует queue.Handler.
func (h *FileProcessingHandler) Handle(ctx context.Context, body []byte) error {
	msg, err := queue.Decode(body)
	if err != nil {
		return err
	}
	if msg.EventType != FileProcessingEvent {
		return fmt.Errorf("unexpected file-processing event %q", msg.EventType)
	}

	var job FileJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		return fmt.Errorf("decode file job: %w", err)
	}
	switch {
	case job.OrderID == "":
		return fmt.Errorf("file job: orderId is required")
	case job.FileKey == "":
		return fmt.Errorf("file job: fileKey is required")
	case job.Pages < 1:
		return fmt.Errorf("file job: pages must be positive")
	}

	if err := h.processor.Process(ctx, job); err != nil {
		return fmt.Errorf("process file %s: %w", job.FileKey, err)
	}
	return nil
}
