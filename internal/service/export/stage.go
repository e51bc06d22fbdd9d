package export

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// stage runs one named pipeline step inside a span, logs its start and end
// as EXPORT (<name>) lines and records the result in the report. A failing
// non-fatal stage is logged as a warning; the caller decides whether to stop.
func (s *Service) stage(ctx context.Context, report *RunReport, name string, fatal bool, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "export."+strings.ReplaceAll(name, " ", "_"),
		trace.WithAttributes(attribute.Bool("export.stage.fatal", fatal)),
	)
	defer span.End()

	log := s.log.With(slog.String("stage", name))
	log.InfoContext(ctx, "EXPORT ("+name+")")

	start := s.now()
	err := fn(ctx)
	result := StageResult{Name: name, Duration: s.now().Sub(start), Err: err}
	report.Stages = append(report.Stages, result)

	switch {
	case err == nil:
		log.InfoContext(ctx, "EXPORT ("+name+" done)", slog.Duration("duration", result.Duration))
	case fatal:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorContext(ctx, "EXPORT ("+name+" failed)",
			slog.Duration("duration", result.Duration),
			slog.String("error", err.Error()),
		)
	default:
		span.RecordError(err)
		log.WarnContext(ctx, "EXPORT ("+name+" failed)",
			slog.Duration("duration", result.Duration),
			slog.String("error", err.Error()),
		)
	}
	return err
}
