// Package docs registers the gateway's Swagger document with swag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {"name": "MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/api.HealthResponse"}}}
            }
        },
        "/accounts/login": {
            "get": {
                "produces": ["application/json", "text/html"],
                "tags": ["Accounts"],
                "summary": "Authorization URL",
                "parameters": [
                    {"type": "string", "description": "html or json", "name": "format", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/api.LoginResponse"}}}
            }
        },
        "/accounts/callback": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Accounts"],
                "summary": "OAuth callback",
                "parameters": [
                    {"type": "string", "description": "Authorization code", "name": "code", "in": "query", "required": true},
                    {"type": "string", "description": "Opaque state", "name": "state", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.CallbackResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/accounts/{account_id}/balances": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Accounts"],
                "summary": "Account balances",
                "parameters": [
                    {"type": "string", "description": "Account hash", "name": "account_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/orders/default": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Orders"],
                "summary": "Place an order on the configured account",
                "parameters": [
                    {"description": "Order", "name": "order", "in": "body", "required": true, "schema": {"$ref": "#/definitions/schwab.OrderRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/orders/{account_id}": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Orders"],
                "summary": "Place an order",
                "parameters": [
                    {"type": "string", "description": "Account hash", "name": "account_id", "in": "path", "required": true},
                    {"description": "Order", "name": "order", "in": "body", "required": true, "schema": {"$ref": "#/definitions/schwab.OrderRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/marketdata/{symbol}/history": {
            "get": {
                "produces": ["application/json"],
                "tags": ["MarketData"],
                "summary": "Price history",
                "parameters": [
                    {"type": "string", "description": "Ticker", "name": "symbol", "in": "path", "required": true},
                    {"type": "string", "name": "periodType", "in": "query"},
                    {"type": "integer", "name": "period", "in": "query"},
                    {"type": "string", "name": "frequencyType", "in": "query"},
                    {"type": "integer", "name": "frequency", "in": "query"},
                    {"type": "string", "description": "Epoch ms or ISO-8601", "name": "startDate", "in": "query"},
                    {"type": "string", "description": "Epoch ms or ISO-8601", "name": "endDate", "in": "query"},
                    {"type": "boolean", "name": "needExtendedHoursData", "in": "query"},
                    {"type": "boolean", "name": "needPreviousClose", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "api.HealthResponse": {
            "type": "object",
            "properties": {"status": {"type": "string"}, "account": {"type": "string"}}
        },
        "api.LoginResponse": {
            "type": "object",
            "properties": {"authorize_url": {"type": "string"}}
        },
        "api.CallbackResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string"},
                "tokens": {"type": "object"},
                "saved": {"type": "boolean"},
                "save_error": {"type": "string"},
                "env_updated": {"type": "boolean"},
                "env_error": {"type": "string"}
            }
        },
        "schwab.OrderLeg": {
            "type": "object",
            "properties": {
                "instruction": {"type": "string", "enum": ["BUY", "SELL", "BUY_TO_COVER", "SELL_SHORT"]},
                "quantity": {"type": "number"},
                "symbol": {"type": "string"},
                "assetType": {"type": "string", "enum": ["EQUITY", "OPTION", "MUTUAL_FUND", "CASH_EQUIVALENT"]}
            }
        },
        "schwab.OrderRequest": {
            "type": "object",
            "properties": {
                "orderType": {"type": "string"},
                "session": {"type": "string"},
                "duration": {"type": "string"},
                "orderStrategyType": {"type": "string"},
                "price": {"type": "number"},
                "orderLegCollection": {"type": "array", "items": {"$ref": "#/definitions/schwab.OrderLeg"}}
            }
        },
        "errors.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "success": {"type": "boolean"},
                "timestamp": {"type": "string"},
                "path": {"type": "string"},
                "detail": {}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Schwab Gateway API",
	Description:      "Thin HTTP gateway over the Schwab Trader and Market Data APIs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
