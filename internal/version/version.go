// Package version хранит данные сборки, проставляемые через -ldflags:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/campusprint/internal/version.version=v1.4.0"
package version

import (
	"runtime"

	log "github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает собранный бинарник.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// Current возвращает данные текущей сборки.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date, GoVersion: runtime.Version()}
}

// GetVersion возвращает версию сборки для health-ответов.
func GetVersion() string { return version }

// Dev сообщает, что бинарник собран без -ldflags.
func (b Build) Dev() bool { return b.Version == "dev" }

// Fields возвращает поля для стартовой записи в лог.
func (b Build) Fields() log.Fields {
	return log.Fields{
		"version": b.Version,
		"commit":  b.Commit,
		"built":   b.Date,
		"go":      b.GoVersion,
	}
}
