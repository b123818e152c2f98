package workflow

import (
	"context"
	"fmt"

	"studyhub/internal/ledger"
	"studyhub/internal/logging"
	"studyhub/internal/services/pdf"
	"studyhub/internal/stage"
)

const contentTypePDF = "application/pdf"

// finalize assembles the document from whatever sections succeeded, renders
// it, and moves the job to its terminal status.
func (o *Orchestrator) finalize(ctx context.Context, run *jobRun, optional []stage.Node, final *stage.Node) error {
	doc, missing := o.buildDocument(run, optional)

	var artifactRef string
	if final != nil {
		ref, failure, err := o.renderWithStage(ctx, run, final.Stage, doc)
		if err != nil {
			return err
		}
		if failure != "" {
			return o.finish(ctx, run, ledger.Finish{Status: ledger.StatusFailed, Error: failure})
		}
		artifactRef = ref
	} else {
		data, err := pdf.Render(doc)
		if err != nil {
			return o.finish(ctx, run, ledger.Finish{Status: ledger.StatusFailed, Error: fmt.Sprintf("render sheet: %v", err)})
		}
		blob, err := o.blobs.PutBytes(ctx, data, contentTypePDF)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return o.finish(ctx, run, ledger.Finish{Status: ledger.StatusFailed, Error: fmt.Sprintf("store sheet: %v", err)})
		}
		artifactRef = blob.Ref
	}

	finish := ledger.Finish{Status: ledger.StatusCompleted, FinalArtifactRef: artifactRef}
	if len(missing) > 0 {
		finish.Status = ledger.StatusPartiallyFailed
		finish.MissingSections = missing
	}
	run.logger.Debug("document assembled",
		logging.Int("sections", len(doc.Sections)),
		logging.Bool("image", len(doc.Image) > 0),
	)
	return o.finish(ctx, run, finish)
}

// buildDocument returns the renderer input and the keys of sections that
// could not be produced.
func (o *Orchestrator) buildDocument(run *jobRun, optional []stage.Node) (pdf.Document, []string) {
	job := run.job
	doc := pdf.Document{
		Title:     job.Title,
		Subtitle:  subtitleFor(job),
		CreatedAt: job.CreatedAt,
	}
	if out, ok := run.output(ledger.StageEnhance); ok {
		doc.Image = out.data
	}

	var missing []string
	for _, node := range optional {
		out, ok := run.output(node.Stage)
		if !ok {
			missing = append(missing, node.Section)
			doc.Missing = append(doc.Missing, node.Heading)
			continue
		}
		section, err := stage.BuildSection(job.Kind, node.Stage, out.data)
		if err != nil {
			logging.WarnWithContext(run.logger, "stage result unusable", "section_build_failed",
				logging.String(logging.FieldStage, string(node.Stage)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the section is reported as missing"),
			)
			missing = append(missing, node.Section)
			doc.Missing = append(doc.Missing, node.Heading)
			continue
		}
		doc.Sections = append(doc.Sections, section)
	}
	return doc, missing
}

// renderWithStage runs the final render stage, reusing an earlier success.
// A non-empty failure message means the job should be failed.
func (o *Orchestrator) renderWithStage(ctx context.Context, run *jobRun, st ledger.Stage, doc pdf.Document) (string, string, error) {
	if result, ok := run.job.Result(st); ok {
		if result.Outcome == ledger.OutcomeSucceeded && result.ResultRef != "" {
			return result.ResultRef, "", nil
		}
		if result.Outcome != ledger.OutcomeSucceeded {
			return "", stageFailure(st, result), nil
		}
	}
	in := stage.Input{JobID: run.job.ID, Title: run.job.Title, Filename: run.job.SourceFilename, Document: &doc}
	result, err := o.executeStage(ctx, run, st, in)
	if err != nil {
		return "", "", err
	}
	if result.Outcome != ledger.OutcomeSucceeded {
		return "", stageFailure(st, result), nil
	}
	return result.ResultRef, "", nil
}

func stageFailure(st ledger.Stage, result ledger.StageResult) string {
	if result.Error == "" {
		return fmt.Sprintf("%s failed", st)
	}
	return fmt.Sprintf("%s failed: %s", st, result.Error)
}

func subtitleFor(job *ledger.Job) string {
	switch job.Kind {
	case ledger.KindWhiteboard:
		return "Whiteboard capture"
	default:
		return "Lecture study guide"
	}
}
