package warehouse

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/google/uuid"
)

// Compile-time interface check.
var _ Engine = (*AthenaEngine)(nil)

// AthenaAPI is the subset of the Athena client used by AthenaEngine.
type AthenaAPI interface {
	StartQueryExecution(ctx context.Context, in *athena.StartQueryExecutionInput, opts ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, in *athena.GetQueryExecutionInput, opts ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, in *athena.GetQueryResultsInput, opts ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

// AthenaEngine implements Engine on Amazon Athena.
type AthenaEngine struct {
	client AthenaAPI
}

// NewAthenaEngine wraps an Athena client.
func NewAthenaEngine(client AthenaAPI) *AthenaEngine {
	return &AthenaEngine{client: client}
}

// NewAthenaEngineFromConfig builds the Athena client from an AWS config.
func NewAthenaEngineFromConfig(cfg aws.Config) *AthenaEngine {
	return NewAthenaEngine(athena.NewFromConfig(cfg))
}

// Submit starts a query execution. Each call carries a fresh request token.
func (e *AthenaEngine) Submit(ctx context.Context, sql, database, outputLocation string) (string, error) {
	out, err := e.client.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString:           aws.String(sql),
		ClientRequestToken:    aws.String(uuid.NewString()),
		QueryExecutionContext: &types.QueryExecutionContext{Database: aws.String(database)},
		ResultConfiguration:   &types.ResultConfiguration{OutputLocation: aws.String(outputLocation)},
	})
	if err != nil {
		return "", fmt.Errorf("starting query: %w", err)
	}
	return aws.ToString(out.QueryExecutionId), nil
}

// Poll reads the execution status.
func (e *AthenaEngine) Poll(ctx context.Context, id string) (Status, error) {
	out, err := e.client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(id)})
	if err != nil {
		return Status{}, err
	}
	qe := out.QueryExecution
	if qe == nil || qe.Status == nil {
		return Status{}, fmt.Errorf("query %s: empty status", id)
	}

	st := Status{State: State(qe.Status.State), Reason: "No further details"}
	if r := aws.ToString(qe.Status.StateChangeReason); r != "" {
		st.Reason = r
	}
	if qe.ResultConfiguration != nil {
		st.OutputLocation = aws.ToString(qe.ResultConfiguration.OutputLocation)
	}
	return st, nil
}

// Results pages through the result set, header row included.
func (e *AthenaEngine) Results(ctx context.Context, id string) ([][]string, error) {
	var rows [][]string
	p := athena.NewGetQueryResultsPaginator(e.client, &athena.GetQueryResultsInput{QueryExecutionId: aws.String(id)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading results of %s: %w", id, err)
		}
		if page.ResultSet == nil {
			continue
		}
		for _, r := range page.ResultSet.Rows {
			row := make([]string, len(r.Data))
			for i, d := range r.Data {
				row[i] = aws.ToString(d.VarCharValue)
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}
