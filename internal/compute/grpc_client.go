package compute

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	computeproto "duck-query/internal/compute/proto"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// defaultAgentCallTimeout bounds a single agent RPC when the caller set no deadline.
const defaultAgentCallTimeout = 30 * time.Second

// grpcWorkerClient is the remote provider's connection to one compute agent.
type grpcWorkerClient struct {
	conn      *grpc.ClientConn
	worker    computeproto.ComputeWorkerClient
	authToken string
}

func newGRPCWorkerClient(endpointURL, authToken string) (*grpcWorkerClient, error) {
	EnsureGRPCJSONCodec()

	target, secure, err := grpcDialTarget(endpointURL)
	if err != nil {
		return nil, err
	}
	var creds credentials.TransportCredentials
	if secure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(GRPCJSONCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial compute agent %s: %w", target, err)
	}
	return &grpcWorkerClient{
		conn:      conn,
		worker:    computeproto.NewComputeWorkerClient(conn),
		authToken: authToken,
	}, nil
}

// grpcDialTarget accepts grpc://host:port (plaintext) or grpcs://host:port (TLS).
func grpcDialTarget(endpointURL string) (target string, secure bool, err error) {
	u, err := url.Parse(endpointURL)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint url: %w", err)
	}
	switch scheme := strings.ToLower(strings.TrimSpace(u.Scheme)); scheme {
	case "grpc", "grpcs":
		if u.Host == "" {
			return "", false, fmt.Errorf("grpc endpoint host is required")
		}
		return u.Host, scheme == "grpcs", nil
	default:
		return "", false, fmt.Errorf("grpc transport requires grpc:// or grpcs:// endpoint")
	}
}

func (c *grpcWorkerClient) close() error {
	return c.conn.Close()
}

// callContext signs an outgoing call to method and applies the default
// timeout unless ctx already carries a deadline.
func (c *grpcWorkerClient) callContext(ctx context.Context, method, requestID string) (context.Context, context.CancelFunc) {
	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, defaultAgentCallTimeout)
	}
	md := metadata.Pairs(SignAgentCall(method, c.authToken, requestID, time.Now())...)
	return metadata.NewOutgoingContext(ctx, md), cancel
}

func (c *grpcWorkerClient) submitQuery(ctx context.Context, req SubmitQueryRequest) (SubmitQueryResponse, error) {
	ctx, cancel := c.callContext(ctx, computeproto.ComputeWorker_SubmitQuery_FullMethodName, req.RequestID)
	defer cancel()

	out, err := c.worker.SubmitQuery(ctx, &computeproto.SubmitQueryRequest{
		Sql:     req.SQL,
		MaxRows: req.MaxRows,
		Context: &computeproto.RequestContext{RequestId: req.RequestID},
	})
	if err != nil {
		return SubmitQueryResponse{}, err
	}
	return SubmitQueryResponse{QueryID: out.QueryId, Status: out.Status, RequestID: req.RequestID}, nil
}

func (c *grpcWorkerClient) getQueryStatus(ctx context.Context, req GetQueryStatusRequest, requestID string) (QueryStatusResponse, error) {
	ctx, cancel := c.callContext(ctx, computeproto.ComputeWorker_GetQueryStatus_FullMethodName, requestID)
	defer cancel()

	out, err := c.worker.GetQueryStatus(ctx, &computeproto.GetQueryStatusRequest{QueryId: req.QueryID})
	if err != nil {
		return QueryStatusResponse{}, err
	}
	resp := QueryStatusResponse{RequestID: requestID}
	if out != nil {
		resp.QueryID = out.QueryId
		resp.Status = out.Status
		resp.Columns = decodeColumns(out.Columns)
		resp.RowCount = out.RowCount
		resp.RowsAffected = out.RowsAffected
		resp.HasResult = out.HasResult
		resp.Error = out.Error
		resp.CompletedAt = out.CompletedAtRfc3339
	}
	return resp, nil
}

func (c *grpcWorkerClient) fetchQueryResults(ctx context.Context, req FetchQueryResultsRequest, requestID string) (FetchQueryResultsResponse, error) {
	ctx, cancel := c.callContext(ctx, computeproto.ComputeWorker_FetchQueryResults_FullMethodName, requestID)
	defer cancel()

	out, err := c.worker.FetchQueryResults(ctx, &computeproto.FetchQueryResultsRequest{
		QueryId:    req.QueryID,
		PageToken:  req.PageToken,
		MaxResults: clampInt32(req.MaxResults),
	})
	if err != nil {
		return FetchQueryResultsResponse{}, err
	}
	resp := FetchQueryResultsResponse{RequestID: requestID}
	if out != nil {
		resp.QueryID = out.QueryId
		resp.Columns = decodeColumns(out.Columns)
		resp.Rows = decodeRows(out.Rows)
		resp.RowCount = out.RowCount
		resp.NextPageToken = out.NextPageToken
	}
	return resp, nil
}

func (c *grpcWorkerClient) cancelQuery(ctx context.Context, req CancelQueryRequest, requestID string) error {
	ctx, cancel := c.callContext(ctx, computeproto.ComputeWorker_CancelQuery_FullMethodName, requestID)
	defer cancel()
	_, err := c.worker.CancelQuery(ctx, &computeproto.CancelQueryRequest{QueryId: req.QueryID})
	return err
}

func (c *grpcWorkerClient) deleteQuery(ctx context.Context, req DeleteQueryRequest, requestID string) error {
	ctx, cancel := c.callContext(ctx, computeproto.ComputeWorker_DeleteQuery_FullMethodName, requestID)
	defer cancel()
	_, err := c.worker.DeleteQuery(ctx, &computeproto.DeleteQueryRequest{QueryId: req.QueryID})
	return err
}

func (c *grpcWorkerClient) health(ctx context.Context) (HealthResponse, error) {
	ctx, cancel := c.callContext(ctx, computeproto.ComputeWorker_Health_FullMethodName, "")
	defer cancel()

	out, err := c.worker.Health(ctx, &computeproto.HealthRequest{})
	if err != nil || out == nil {
		return HealthResponse{}, err
	}
	return HealthResponse{
		Status:                out.Status,
		UptimeSeconds:         int(out.UptimeSeconds),
		DuckDBVersion:         out.DuckdbVersion,
		MaxMemoryGB:           int(out.MaxMemoryGb),
		ActiveQueries:         out.ActiveQueries,
		QueuedJobs:            out.QueuedJobs,
		RunningJobs:           out.RunningJobs,
		CompletedJobs:         out.CompletedJobs,
		StoredJobs:            out.StoredJobs,
		CleanedJobs:           out.CleanedJobs,
		QueryResultTTLSeconds: int(out.ResultTtlSecs),
	}, nil
}

// isGRPCNotFound reports an agent answer that the query id is unknown,
// typically because its results already expired.
func isGRPCNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// clampInt32 maps a page size onto the wire field; zero or less means the
// agent's default.
func clampInt32(n int) int32 {
	switch {
	case n <= 0:
		return 0
	case n > math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(n)
	}
}

func decodeColumns(cols []*computeproto.Column) []Column {
	out := make([]Column, 0, len(cols))
	for _, col := range cols {
		if col != nil {
			out = append(out, Column{Name: col.Name, Type: col.Type})
		}
	}
	return out
}

// decodeRows keeps nil wire rows as empty rows so row positions still line
// up with the agent's offsets.
func decodeRows(rows []*computeproto.ResultRow) []ResultRow {
	out := make([]ResultRow, len(rows))
	for i, row := range rows {
		if row == nil {
			continue
		}
		out[i] = ResultRow{
			Values: append([]string(nil), row.Values...),
			Nulls:  append([]bool(nil), row.Nulls...),
		}
	}
	return out
}
