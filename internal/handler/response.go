package handler

import (
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// JSON builds a JSON response with the given status.
func JSON(status int, v any) (events.APIGatewayProxyResponse, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}, nil
}

// Error builds a {"error": message} response.
func Error(status int, message string) events.APIGatewayProxyResponse {
	resp, _ := JSON(status, map[string]string{"error": message})
	return resp
}

// NeedsAuth is the 401 returned when the user has not connected Google Drive.
func NeedsAuth() events.APIGatewayProxyResponse {
	resp, _ := JSON(http.StatusUnauthorized, map[string]any{
		"error":     "Not connected to Google Drive",
		"needsAuth": true,
	})
	return resp
}
