package pipeline

import (
	"context"
	"fmt"

	"curator/internal/core"
	"curator/internal/persistence"
	"curator/internal/scrape"
)

// ProcessStub takes one stub through acquisition, enrichment and parsing, then commits.
// A *StageError means the failure was recorded on the stub and the run may continue.
// A *PersistenceError means the store could not be written and the run must stop.
func (p *Pipeline) ProcessStub(ctx context.Context, stub core.ArticleStub) error {
	doc, err := p.extractor.Extract(ctx, scrape.Request{
		URL:              stub.Link,
		Title:            stub.Title,
		Snippet:          stub.Snippet,
		MinContentLength: p.config.MinContentLength,
	})
	if err == nil && doc == nil {
		err = scrape.ErrExtractionFailed
	}
	if err != nil {
		return p.recordFailure(ctx, stub, &StageError{Stage: StageAcquisition, Err: err})
	}

	reply, err := p.enricher.Enrich(ctx, stub, doc)
	if err != nil {
		return p.recordFailure(ctx, stub, &StageError{Stage: StageEnrichment, Err: err})
	}

	enrichment, err := p.parser.ExtractEnrichment(reply)
	if err != nil {
		return p.recordFailure(ctx, stub, &StageError{Stage: StageParse, Err: err})
	}

	article, err := core.NewEnrichedArticle(stub, *doc, enrichment, p.now())
	if err != nil {
		return p.recordFailure(ctx, stub, &StageError{Stage: StageParse, Err: err})
	}

	err = persistence.WithTx(ctx, p.db, func(tx persistence.Transaction) error {
		if err := tx.Enriched().Create(ctx, &article); err != nil {
			return err
		}
		return tx.Stubs().MarkProcessed(ctx, stub.ID, doc.Content)
	})
	if err != nil {
		return &PersistenceError{Op: fmt.Sprintf("commit stub %d", stub.ID), Err: err}
	}
	return nil
}

// recordFailure stores the stage error on the stub. The stub is consumed once its
// attempts reach MaxAttempts; otherwise a later run may pick it up again.
// A canceled run leaves the stub untouched.
func (p *Pipeline) recordFailure(ctx context.Context, stub core.ArticleStub, stageErr *StageError) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	consume := stub.Attempts+1 >= p.config.MaxAttempts
	if err := p.db.Stubs().MarkFailed(ctx, stub.ID, stageErr.Error(), consume); err != nil {
		return &PersistenceError{Op: fmt.Sprintf("mark stub %d failed", stub.ID), Err: err}
	}
	return stageErr
}
