package internal

import (
	"context"

	"github.com/Qubut/ops-harvester/internal/search"
)

type HarvesterInterface interface {
	Run(ctx context.Context, q search.Query) search.Result
	SetProgress(fn search.Progress)
}
