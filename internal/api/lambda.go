package api

import (
	"context"

	"github.com/aws/aws-lambda-go/events"

	"github.com/shehryarbajwa/chromeserver/pkg/models"
)

// HandleAPIGateway serves an API Gateway proxy event. The error return is
// always nil: every outcome is expressed as a response.
func (a *Adapter) HandleAPIGateway(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	resp := a.Handle(ctx, models.Event{
		HTTPMethod:      req.HTTPMethod,
		Path:            req.Path,
		Headers:         req.Headers,
		QueryParameters: req.QueryStringParameters,
		Body:            req.Body,
		IsBase64Encoded: req.IsBase64Encoded,
	})

	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	}, nil
}
