package commands

import (
	"fmt"

	"github.com/parrotchat/parrot/internal/logger"
	"github.com/parrotchat/parrot/pkg/config"
)

// InitLogger points the process logger at the level, format and destination
// named in cfg.
func InitLogger(cfg *config.Config) error {
	err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
