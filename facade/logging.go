// File: facade/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"github.com/gamedolphin/gafferchallenge/config"
	"github.com/gamedolphin/gafferchallenge/internal/mlog"
)

// ConfigureLogging installs the log sink described by cfg for loggers created afterwards.
func ConfigureLogging(cfg config.LogConfig) {
	path := cfg.Path
	if path == "" && cfg.Output != "file" {
		path = "stdout"
	}
	mlog.SetOutputTypes(mlog.CoreConfig{
		OutputType:  cfg.Output,
		OutputPath:  path,
		Level:       cfg.Level,
		EncodeType:  cfg.Encoding,
		EncodeColor: cfg.Color,
	})
}
