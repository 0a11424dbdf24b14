package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/repository"
	"github.com/user/sitemirror/internal/verify"
)

// Reporter produces the verification report for an output tree.
type Reporter interface {
	Report(ctx context.Context, root string) (*entity.Report, error)
}

// QA runs the verifier, writes the report file and records the issues.
type QA interface {
	Run(ctx context.Context, root string) (*entity.Report, error)
}

type qaUseCase struct {
	reporter   Reporter
	ledger     repository.PageLedger
	reportFile string
	logger     *zap.Logger
}

func NewQAUseCase(reporter Reporter, ledger repository.PageLedger, reportFile string, logger *zap.Logger) QA {
	return &qaUseCase{reporter: reporter, ledger: ledger, reportFile: reportFile, logger: logger}
}

func (uc *qaUseCase) Run(ctx context.Context, root string) (*entity.Report, error) {
	report, err := uc.reporter.Report(ctx, root)
	if err != nil {
		return nil, err
	}
	if uc.reportFile != "" {
		if err := verify.WriteReport(uc.reportFile, report); err != nil {
			return report, err
		}
		uc.logger.Info("Report saved", zap.String("file", uc.reportFile))
	}
	if uc.ledger != nil {
		if err := uc.ledger.SaveIssues(ctx, report); err != nil {
			uc.logger.Warn("Failed to record issues in ledger", zap.Error(err))
		}
	}
	for _, is := range report.Errors {
		uc.logger.Error("Verification error",
			zap.String("file", is.File),
			zap.String("type", string(is.Kind)),
			zap.String("detail", is.Detail),
		)
	}
	return report, nil
}
