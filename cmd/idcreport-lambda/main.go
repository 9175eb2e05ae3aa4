package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/DrSkyle/idcreport/pkg/engine"
	"github.com/DrSkyle/idcreport/pkg/engine/model"
)

// Event is the optional invocation payload. An empty payload reports on
// every permission set.
type Event struct {
	PermissionSets []string `json:"permission_sets,omitempty"`
	Strict         bool     `json:"strict,omitempty"`
}

// Response summarizes the published report.
type Response struct {
	Accounts int  `json:"accounts"`
	Users    int  `json:"users"`
	Groups   int  `json:"groups"`
	Partial  bool `json:"partial"`
}

func handler(ctx context.Context, evt Event) (Response, error) {
	cfg := engine.Config{
		Region:         os.Getenv("AWS_REGION"),
		CrawlerRoleARN: os.Getenv("CRAWLER_ARN"),
		ReportBucket:   os.Getenv("REPORT_BUCKET_NAME"),
		PermissionSets: evt.PermissionSets,
		StrictMode:     evt.Strict,
		JsonLogs:       true,
	}

	eng, err := engine.New(ctx, engine.WithConfig(cfg))
	if err != nil {
		return Response{}, fmt.Errorf("engine init failed: %w", err)
	}

	rep, err := eng.Run(ctx)
	if err != nil {
		if errors.Is(err, engine.ErrPartialResult) {
			return summarize(rep, true), err
		}
		return Response{}, fmt.Errorf("report run failed: %w", err)
	}

	return summarize(rep, false), nil
}

func summarize(rep *model.Report, partial bool) Response {
	if rep == nil {
		return Response{Partial: partial}
	}
	return Response{
		Accounts: len(rep.Accounts),
		Users:    len(rep.Principals.Users),
		Groups:   len(rep.Principals.Groups),
		Partial:  partial,
	}
}

func main() {
	lambda.Start(handler)
}
