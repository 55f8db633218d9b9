package version

import "fmt"

// Заполняются через -ldflags "-X .../internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает собранный бинарник леджера.
type Build struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Current возвращает сведения о сборке для указанного бинарника.
func Current(service string) Build {
	return Build{Service: service, Version: version, Commit: commit, Date: date}
}

// Fields — поля для logrus.WithFields при старте процесса.
func (b Build) Fields() map[string]interface{} {
	return map[string]interface{}{
		"service": b.Service,
		"version": b.Version,
		"commit":  b.Commit,
		"built":   b.Date,
	}
}

func (b Build) String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", b.Service, b.Version, b.Commit, b.Date)
}
