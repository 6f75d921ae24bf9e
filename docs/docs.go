// Package docs holds the OpenAPI description served under /swagger.
// Regenerate with: swag init -g cmd/bloodreport/main.go -o docs
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
        "/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health message",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.messageResp"}}
                }
            }
        },
        "/analyze": {
            "post": {
                "description": "Stores the PDF, creates a PENDING task and queues it. Poll status_endpoint for the result.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Upload a blood test report for analysis",
                "parameters": [
                    {"type": "file", "description": "blood test report (PDF)", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "default": "Summarise my Blood Test Report", "description": "question about the report", "name": "query", "in": "formData"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/httptransport.analyzeResp"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        },
        "/result/{task_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Get analysis status and result",
                "parameters": [
                    {"type": "string", "description": "task id (uuid)", "name": "task_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.resultResp"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        }
    },
    "definitions": {
        "entity.TaskStatus": {
            "type": "string",
            "enum": ["PENDING", "PROCESSING", "COMPLETED", "FAILED"],
            "x-enum-varnames": ["StatusPending", "StatusProcessing", "StatusCompleted", "StatusFailed"]
        },
        "httptransport.apiError": {
            "type": "object",
            "properties": {"message": {"type": "string"}, "request_id": {"type": "string"}}
        },
        "httptransport.messageResp": {
            "type": "object",
            "properties": {"message": {"type": "string"}}
        },
        "httptransport.analyzeResp": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Analysis has been started. Please check the result later."},
                "status_endpoint": {"type": "string", "example": "/result/0b6f9a4e-6c1e-4f5e-9d8e-2a1c3b4d5e6f"},
                "task_id": {"type": "string", "example": "0b6f9a4e-6c1e-4f5e-9d8e-2a1c3b4d5e6f"}
            }
        },
        "httptransport.resultResp": {
            "type": "object",
            "properties": {
                "analysis": {"type": "string"},
                "created_at": {"type": "string"},
                "error": {"type": "string"},
                "status": {"allOf": [{"$ref": "#/definitions/entity.TaskStatus"}], "example": "COMPLETED"},
                "task_id": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Blood Test Report Analyser API",
	Description:      "Upload a blood test PDF, then poll for a markdown report with a medical summary, nutrition advice and a fitness plan.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
