// Copyright (c) 2021 Red Hat, Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logs

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"k8s.io/klog/v2"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

const (
	DebugLevel = 1
)

// Options mirror the zap flags of controller-runtime. Empty values keep the zap defaults.
type Options struct {
	Development     bool
	Encoder         string
	LogLevel        string
	StackTraceLevel string
	TimeEncoding    string
}

// InitLoggers configures the zap backend shared by controller-runtime, klog and the global zap logger.
func InitLoggers(opts Options) error {
	flagSet := flag.NewFlagSet("zap", flag.ContinueOnError)

	zapOpts := crzap.Options{ZapOpts: []zap.Option{zap.WithCaller(true), zap.AddCallerSkip(-1)}}
	zapOpts.BindFlags(flagSet)

	for name, value := range map[string]string{
		"zap-devel":            strconv.FormatBool(opts.Development),
		"zap-encoder":          opts.Encoder,
		"zap-log-level":        opts.LogLevel,
		"zap-stacktrace-level": opts.StackTraceLevel,
		"zap-time-encoding":    opts.TimeEncoding,
	} {
		if value == "" {
			continue
		}
		if err := flagSet.Set(name, value); err != nil {
			return fmt.Errorf("invalid logging option %s=%s: %w", name, value, err)
		}
	}

	logger := crzap.NewRaw(crzap.UseFlagOptions(&zapOpts))
	_ = zap.ReplaceGlobals(logger)
	lg := zapr.NewLogger(logger).WithCallDepth(1)
	ctrl.SetLogger(lg)
	klog.SetLoggerWithOptions(lg, klog.ContextualLogger(true))
	return nil
}

// AccessLogWriter writes the HTTP access log lines into the global zap logger at the debug level.
func AccessLogWriter() io.Writer {
	return &zapio.Writer{Log: zap.L(), Level: zap.DebugLevel}
}

// TimeTrack used to time any function
// Example:
//
//	{
//	  defer logs.TimeTrack(lg, time.Now(), "exchange the oauth code")
//	}
func TimeTrack(log logr.Logger, start time.Time, name string) {
	log.V(DebugLevel).Info(fmt.Sprintf("Time took to %s", name), "time", time.Since(start))
}

// AuditLog returns the logger used for the security relevant events, like issuing or revoking credentials.
func AuditLog(ctx context.Context) logr.Logger {
	return log.FromContext(ctx, "audit", "true")
}
