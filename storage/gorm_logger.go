package storage

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// gormLogAdapter satisfies gorm's logger.Writer interface (a single
// Printf method) by forwarding every line to the ambient structured
// logger instead of gorm's default os.Stdout writer.
type gormLogAdapter struct {
	logger *log.Logger
}

func newGormLogger(logger *log.Logger) *gormLogAdapter {
	return &gormLogAdapter{logger: logger}
}

func (g *gormLogAdapter) Printf(format string, args ...any) {
	g.logger.Info(fmt.Sprintf(format, args...))
}
