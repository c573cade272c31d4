// Package docs holds the OpenAPI document served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {
		"description": "{{escape .Description}}",
		"title": "{{.Title}}",
		"contact": {},
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/health": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"health"
				],
				"summary": "Liveness probe",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object",
							"additionalProperties": {
								"type": "string"
							}
						}
					}
				}
			}
		},
		"/health/ready": {
			"get": {
				"description": "Checks database, Redis, detector sidecar and engine",
				"produces": [
					"application/json"
				],
				"tags": [
					"health"
				],
				"summary": "Readiness probe",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/health.HealthResponse"
						}
					},
					"503": {
						"description": "Service Unavailable",
						"schema": {
							"$ref": "#/definitions/health.HealthResponse"
						}
					}
				}
			}
		},
		"/health/sessions": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"health"
				],
				"summary": "Active sessions",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/health.SessionsResponse"
						}
					}
				}
			}
		},
		"/v1/keys": {
			"get": {
				"produces": [
					"application/json"
				],
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"keys"
				],
				"summary": "List API keys",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/apikey.KeyListResponse"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			},
			"post": {
				"description": "The secret is only returned once",
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"keys"
				],
				"summary": "Create API key",
				"parameters": [
					{
						"description": "Key details",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/apikey.CreateKeyRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "Created",
						"schema": {
							"$ref": "#/definitions/apikey.CreateKeyResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			}
		},
		"/v1/keys/{id}": {
			"delete": {
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"keys"
				],
				"summary": "Delete API key",
				"parameters": [
					{
						"type": "string",
						"description": "Key ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"204": {
						"description": "No Content"
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			}
		},
		"/v1/liveness/calls": {
			"post": {
				"description": "Accepts an SDP offer as application/sdp, JSON or multipart and answers with SDP. The session ID is returned in X-Session-Id.",
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"realtime"
				],
				"summary": "Start a WebRTC liveness session",
				"parameters": [
					{
						"description": "SDP offer and session options",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/realtime.OfferRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "Created",
						"schema": {
							"$ref": "#/definitions/realtime.OfferResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					},
					"503": {
						"description": "Service Unavailable",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			}
		},
		"/v1/liveness/calls/{session_id}": {
			"get": {
				"description": "Server-sent events carrying local candidates until gathering completes",
				"produces": [
					"text/event-stream"
				],
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"realtime"
				],
				"summary": "Stream local ICE candidates",
				"parameters": [
					{
						"type": "string",
						"description": "Session ID",
						"name": "session_id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			},
			"post": {
				"consumes": [
					"application/json"
				],
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"realtime"
				],
				"summary": "Add remote ICE candidate",
				"parameters": [
					{
						"type": "string",
						"description": "Session ID",
						"name": "session_id",
						"in": "path",
						"required": true
					},
					{
						"description": "Candidate",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/realtime.ICECandidateRequest"
						}
					}
				],
				"responses": {
					"204": {
						"description": "No Content"
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			},
			"delete": {
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"realtime"
				],
				"summary": "End a WebRTC session",
				"parameters": [
					{
						"type": "string",
						"description": "Session ID",
						"name": "session_id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"204": {
						"description": "No Content"
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			}
		},
		"/v1/liveness/ice-servers": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"realtime"
				],
				"summary": "List ICE servers",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/realtime.ICEServersResponse"
						}
					}
				}
			}
		},
		"/v1/liveness/metrics": {
			"get": {
				"produces": [
					"application/json"
				],
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"metrics"
				],
				"summary": "Hourly metrics",
				"parameters": [
					{
						"type": "integer",
						"description": "Hours to return (default 24, max 168)",
						"name": "hours",
						"in": "query",
						"required": false
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/verification.MetricsListResponse"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			}
		},
		"/v1/liveness/metrics/summary": {
			"get": {
				"produces": [
					"application/json"
				],
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"metrics"
				],
				"summary": "Metrics summary",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/verification.Summary"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			}
		},
		"/v1/liveness/sessions": {
			"get": {
				"description": "Returns the calling client's verification records, newest first",
				"produces": [
					"application/json"
				],
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"verifications"
				],
				"summary": "List verifications",
				"parameters": [
					{
						"type": "integer",
						"description": "Page size (max 100)",
						"name": "limit",
						"in": "query",
						"required": false
					},
					{
						"type": "integer",
						"description": "Offset",
						"name": "offset",
						"in": "query",
						"required": false
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/verification.RecordListResponse"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			}
		},
		"/v1/liveness/sessions/{id}": {
			"get": {
				"produces": [
					"application/json"
				],
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"verifications"
				],
				"summary": "Get verification",
				"parameters": [
					{
						"type": "string",
						"description": "Session ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/verification.Record"
						}
					},
					"403": {
						"description": "Forbidden",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			}
		},
		"/v1/liveness/sessions/{id}/capture": {
			"get": {
				"description": "Returns the best face crop, or the full frame with kind=frame, as JPEG",
				"produces": [
					"image/jpeg"
				],
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"verifications"
				],
				"summary": "Get best capture",
				"parameters": [
					{
						"type": "string",
						"description": "Session ID",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"type": "string",
						"description": "face or frame",
						"name": "kind",
						"in": "query",
						"required": false
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "file"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			},
			"delete": {
				"description": "Drops the stored images of a session before they expire",
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"verifications"
				],
				"summary": "Delete captures",
				"parameters": [
					{
						"type": "string",
						"description": "Session ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"204": {
						"description": "No Content"
					},
					"403": {
						"description": "Forbidden",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			}
		},
		"/v1/liveness/sessions/{id}/events": {
			"get": {
				"description": "Server-sent events for a session, replaying the terminal event of a finished session",
				"produces": [
					"text/event-stream"
				],
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"sessions"
				],
				"summary": "Follow session events",
				"parameters": [
					{
						"type": "string",
						"description": "Session ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"403": {
						"description": "Forbidden",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					},
					"503": {
						"description": "Service Unavailable",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			}
		},
		"/v1/liveness/ws": {
			"get": {
				"description": "Upgrades to a websocket carrying JSON commands and events, and binary JPEG frames",
				"security": [
					{
						"APIKeyAuth": []
					}
				],
				"tags": [
					"sessions"
				],
				"summary": "Websocket capture session",
				"responses": {
					"101": {
						"description": "Switching Protocols"
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/shared.APIError"
						}
					}
				}
			}
		}
	},
	"definitions": {
		"apikey.CreateKeyRequest": {
			"type": "object",
			"properties": {
				"expires_in_days": {
					"type": "integer"
				},
				"name": {
					"type": "string"
				}
			}
		},
		"apikey.CreateKeyResponse": {
			"type": "object",
			"properties": {
				"created_at": {
					"type": "string"
				},
				"expires_at": {
					"type": "string"
				},
				"id": {
					"type": "string"
				},
				"last_used": {
					"type": "string"
				},
				"name": {
					"type": "string"
				},
				"prefix": {
					"type": "string"
				},
				"secret": {
					"type": "string"
				}
			}
		},
		"apikey.KeyListResponse": {
			"type": "object",
			"properties": {
				"keys": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/apikey.KeyResponse"
					}
				}
			}
		},
		"apikey.KeyResponse": {
			"type": "object",
			"properties": {
				"created_at": {
					"type": "string"
				},
				"expires_at": {
					"type": "string"
				},
				"id": {
					"type": "string"
				},
				"last_used": {
					"type": "string"
				},
				"name": {
					"type": "string"
				},
				"prefix": {
					"type": "string"
				}
			}
		},
		"health.ComponentStatus": {
			"type": "object",
			"properties": {
				"error": {
					"type": "string"
				},
				"latency_ms": {
					"type": "integer"
				},
				"status": {
					"type": "string"
				}
			}
		},
		"health.HealthResponse": {
			"type": "object",
			"properties": {
				"components": {
					"type": "object",
					"additionalProperties": {
						"$ref": "#/definitions/health.ComponentStatus"
					}
				},
				"stats": {
					"type": "object"
				},
				"status": {
					"type": "string"
				},
				"timestamp": {
					"type": "string"
				},
				"uptime_seconds": {
					"type": "integer"
				},
				"version": {
					"type": "string"
				}
			}
		},
		"health.SessionsResponse": {
			"type": "object",
			"properties": {
				"sessions": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/livesession.SessionInfo"
					}
				},
				"total": {
					"type": "integer"
				}
			}
		},
		"livesession.SessionInfo": {
			"type": "object",
			"properties": {
				"client_id": {
					"type": "string"
				},
				"created_at": {
					"type": "string"
				},
				"frames_dropped": {
					"type": "integer"
				},
				"frames_processed": {
					"type": "integer"
				},
				"frames_skipped": {
					"type": "integer"
				},
				"mode": {
					"type": "string"
				},
				"session_id": {
					"type": "string"
				},
				"state": {
					"type": "string"
				}
			}
		},
		"realtime.ICECandidateRequest": {
			"type": "object",
			"properties": {
				"candidate": {
					"type": "string"
				},
				"sdpMLineIndex": {
					"type": "integer"
				},
				"sdpMid": {
					"type": "string"
				}
			}
		},
		"realtime.ICEServer": {
			"type": "object",
			"properties": {
				"credential": {
					"type": "string"
				},
				"urls": {
					"type": "array",
					"items": {
						"type": "string"
					}
				},
				"username": {
					"type": "string"
				}
			}
		},
		"realtime.ICEServersResponse": {
			"type": "object",
			"properties": {
				"ice_servers": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/realtime.ICEServer"
					}
				}
			}
		},
		"realtime.OfferRequest": {
			"type": "object",
			"properties": {
				"options": {
					"type": "object",
					"additionalProperties": true
				},
				"sdp": {
					"type": "string"
				}
			}
		},
		"realtime.OfferResponse": {
			"type": "object",
			"properties": {
				"ice_servers": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/realtime.ICEServer"
					}
				},
				"sdp": {
					"type": "string"
				},
				"session_id": {
					"type": "string"
				}
			}
		},
		"shared.APIError": {
			"type": "object",
			"properties": {
				"code": {
					"type": "string"
				},
				"message": {
					"type": "string"
				}
			}
		},
		"verification.ActionOutcome": {
			"type": "object",
			"properties": {
				"action": {
					"type": "string"
				},
				"duration_ms": {
					"type": "integer"
				},
				"status": {
					"type": "string"
				}
			}
		},
		"verification.Metrics": {
			"type": "object",
			"properties": {
				"avg_elapsed_ms": {
					"type": "integer"
				},
				"cancelled": {
					"type": "integer"
				},
				"client_id": {
					"type": "string"
				},
				"date": {
					"type": "string"
				},
				"error_breakdown": {
					"type": "object",
					"additionalProperties": {
						"type": "integer"
					}
				},
				"errors": {
					"type": "integer"
				},
				"failures": {
					"type": "integer"
				},
				"hour": {
					"type": "integer"
				},
				"sessions": {
					"type": "integer"
				},
				"successes": {
					"type": "integer"
				}
			}
		},
		"verification.MetricsListResponse": {
			"type": "object",
			"properties": {
				"client_id": {
					"type": "string"
				},
				"hours": {
					"type": "integer"
				},
				"metrics": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/verification.Metrics"
					}
				}
			}
		},
		"verification.Record": {
			"type": "object",
			"properties": {
				"actions": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/verification.ActionOutcome"
					}
				},
				"actions_passed": {
					"type": "integer"
				},
				"best_quality": {
					"type": "number"
				},
				"client_id": {
					"type": "string"
				},
				"completed_at": {
					"type": "string"
				},
				"created_at": {
					"type": "string"
				},
				"elapsed_ms": {
					"type": "integer"
				},
				"error_code": {
					"type": "string"
				},
				"has_capture": {
					"type": "boolean"
				},
				"id": {
					"type": "string"
				},
				"message": {
					"type": "string"
				},
				"mode": {
					"type": "string"
				},
				"silent_passed": {
					"type": "integer"
				},
				"state": {
					"type": "string"
				},
				"success": {
					"type": "boolean"
				}
			}
		},
		"verification.RecordListResponse": {
			"type": "object",
			"properties": {
				"limit": {
					"type": "integer"
				},
				"offset": {
					"type": "integer"
				},
				"records": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/verification.Record"
					}
				},
				"total": {
					"type": "integer"
				}
			}
		},
		"verification.Summary": {
			"type": "object",
			"properties": {
				"avg_elapsed_ms": {
					"type": "integer"
				},
				"client_id": {
					"type": "string"
				},
				"error_breakdown": {
					"type": "object",
					"additionalProperties": {
						"type": "integer"
					}
				},
				"period": {
					"type": "string"
				},
				"success_rate": {
					"type": "number"
				},
				"successes": {
					"type": "integer"
				},
				"total_sessions": {
					"type": "integer"
				}
			}
		}
	},
	"securityDefinitions": {
		"APIKeyAuth": {
			"type": "apiKey",
			"name": "X-API-Key",
			"in": "header"
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Liveness API",
	Description:      "Face liveness verification over WebRTC and websockets",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
