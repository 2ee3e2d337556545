// Package docs registers the operator API's Swagger document.
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
        "/abtests/{id}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "abtests"
                ],
                "summary": "Get an A/B test",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "A/B test ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/abtests/{id}/start": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "abtests"
                ],
                "summary": "Start a draft or paused A/B test",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "409": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "A/B test ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "schema": {
                            "type": "object"
                        },
                        "description": "Start time",
                        "name": "start",
                        "in": "body",
                        "required": false
                    }
                ]
            }
        },
        "/abtests/{id}/pause": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "abtests"
                ],
                "summary": "Pause an A/B test",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "409": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "A/B test ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/abtests/{id}/complete": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "abtests"
                ],
                "summary": "Record the winner of an A/B test",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Error"
                    },
                    "409": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "A/B test ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "schema": {
                            "type": "object"
                        },
                        "description": "Winner",
                        "name": "complete",
                        "in": "body",
                        "required": true
                    }
                ]
            }
        },
        "/abtests/{id}/performance": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "abtests"
                ],
                "summary": "Per-variant performance of an A/B test",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "A/B test ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/abtests/{id}/audit": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "abtests"
                ],
                "summary": "A/B test lifecycle audit trail",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "A/B test ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "int",
                        "description": "Maximum entries",
                        "name": "limit",
                        "in": "query",
                        "required": false
                    }
                ]
            }
        },
        "/campaigns/{id}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "campaigns"
                ],
                "summary": "Get a campaign",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Campaign ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/campaigns/{id}/send": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "campaigns"
                ],
                "summary": "Send a draft or scheduled campaign now",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Error"
                    },
                    "409": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Campaign ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/campaigns/{id}/resume": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "campaigns"
                ],
                "summary": "Resume a paused campaign",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "409": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Campaign ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/campaigns/{id}/schedule": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "campaigns"
                ],
                "summary": "Schedule a draft or paused campaign",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "409": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Campaign ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "schema": {
                            "type": "object"
                        },
                        "description": "Send time",
                        "name": "schedule",
                        "in": "body",
                        "required": true
                    }
                ]
            }
        },
        "/campaigns/{id}/pause": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "campaigns"
                ],
                "summary": "Pause a scheduled or processing campaign",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "409": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Campaign ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/campaigns/{id}/clone": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "campaigns"
                ],
                "summary": "Copy a campaign into a new draft",
                "responses": {
                    "201": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Campaign ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "schema": {
                            "type": "object"
                        },
                        "description": "Name of the copy",
                        "name": "clone",
                        "in": "body",
                        "required": false
                    }
                ]
            }
        },
        "/campaigns/{id}/analytics": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "campaigns"
                ],
                "summary": "Campaign delivery and engagement analytics",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Campaign ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/campaigns/stuck": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "campaigns"
                ],
                "summary": "Campaigns left in processing",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Go duration, e.g. 30m",
                        "name": "older_than",
                        "in": "query",
                        "required": false
                    }
                ]
            }
        },
        "/campaigns/bulk": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "campaigns"
                ],
                "summary": "Send ad-hoc content to a segment in batches",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Error"
                    },
                    "404": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "schema": {
                            "type": "object"
                        },
                        "description": "Segment and content",
                        "name": "bulk",
                        "in": "body",
                        "required": true
                    }
                ]
            }
        },
        "/campaigns/{id}/audit": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "campaigns"
                ],
                "summary": "Campaign lifecycle audit trail",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "503": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Campaign ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "int",
                        "description": "Maximum entries",
                        "name": "limit",
                        "in": "query",
                        "required": false
                    }
                ]
            }
        },
        "/segments/prebuilt": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "segments"
                ],
                "summary": "List prebuilt segment templates",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/segments/preview": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "segments"
                ],
                "summary": "Size ad-hoc rules against the contact base",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "schema": {
                            "type": "object"
                        },
                        "description": "Rules and logic",
                        "name": "rules",
                        "in": "body",
                        "required": true
                    }
                ]
            }
        },
        "/segments/sample": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "segments"
                ],
                "summary": "Sample eligible contacts matching ad-hoc rules",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "schema": {
                            "type": "object"
                        },
                        "description": "Rules, logic and limit",
                        "name": "rules",
                        "in": "body",
                        "required": true
                    }
                ]
            }
        },
        "/segments/{id}/stats": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "segments"
                ],
                "summary": "Segment engagement statistics",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Segment ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/segments/{id}/sync": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "segments"
                ],
                "summary": "Recompute a segment's contact count",
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Segment ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Mailwave Dispatch API",
	Description:      "Operator endpoints for segments, campaigns and A/B tests",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
