package marten

import (
	"context"
	"fmt"
)

// Command is a query as it would be sent to the database.
type Command struct {
	Text   string
	Params []any
}

// Diagnostics previews and explains compiled queries.
type Diagnostics struct {
	store *DocumentStore
}

// PreviewCommand returns the SQL and parameter values q would run with. It
// touches neither the database nor the document table.
func (d *Diagnostics) PreviewCommand(q Description) (Command, error) {
	plan, err := d.store.plans.PlanFor(q)
	if err != nil {
		return Command{}, err
	}
	params, err := plan.Parameters(q)
	if err != nil {
		return Command{}, err
	}
	return Command{Text: plan.Command.Template, Params: params}, nil
}

// ExplainPlan returns the database's execution plan for q. The document
// table is ensured first, as executing would.
func (d *Diagnostics) ExplainPlan(ctx context.Context, q Description) (string, error) {
	plan, err := d.store.plans.PlanFor(q)
	if err != nil {
		return "", err
	}
	if _, err := d.store.provider.StorageFor(ctx, plan.Document); err != nil {
		return "", err
	}
	cmd, err := d.PreviewCommand(q)
	if err != nil {
		return "", err
	}
	explained, err := d.store.exec.Explain(ctx, cmd.Text, cmd.Params...)
	if err != nil {
		return "", fmt.Errorf("explain %T: %w", q, err)
	}
	return explained, nil
}
