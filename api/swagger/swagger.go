package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Attendly API",
        "description": "Student engagement, rankings and homework video access",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Students", "description": "Student roster and weekly engagement"},
        {"name": "Rankings", "description": "Center and grade standings"},
        {"name": "Vouchers", "description": "Homework video access codes"},
        {"name": "Sessions", "description": "Homework video sessions"},
        {"name": "Scoring", "description": "Scoring conditions and the calculator"},
        {"name": "Exports", "description": "Score table exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate a user",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Invalid credentials"}}
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Describe the authenticated user",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Students"],
                "summary": "Register a student",
                "security": [{"BearerAuth": []}],
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Fetch one student with weekly records",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            },
            "put": {
                "tags": ["Students"],
                "summary": "Update a student",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/students/{id}/score": {
            "patch": {
                "tags": ["Students"],
                "summary": "Apply a manual score delta",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/students/weeks": {
            "put": {
                "tags": ["Students"],
                "summary": "Record one week's engagement",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/rankings/me": {
            "get": {
                "tags": ["Rankings"],
                "summary": "Return the calling student's ranking",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/rankings/scores": {
            "get": {
                "tags": ["Rankings"],
                "summary": "List students with computed ranks",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/vouchers": {
            "get": {
                "tags": ["Vouchers"],
                "summary": "List vouchers",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Vouchers"],
                "summary": "Create a batch of voucher codes",
                "security": [{"BearerAuth": []}],
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/vouchers/{id}": {
            "put": {
                "tags": ["Vouchers"],
                "summary": "Update a voucher",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {
                "tags": ["Vouchers"],
                "summary": "Delete a voucher",
                "security": [{"BearerAuth": []}],
                "responses": {"204": {"description": "No content"}}
            }
        },
        "/vouchers/check": {
            "post": {
                "tags": ["Vouchers"],
                "summary": "Check a voucher code before playback",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Check result, rejections included"}}
            }
        },
        "/vouchers/confirm-view": {
            "post": {
                "tags": ["Vouchers"],
                "summary": "Confirm that playback started",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/sessions": {
            "get": {
                "tags": ["Sessions"],
                "summary": "List homework video sessions",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Sessions"],
                "summary": "Create a homework video session",
                "security": [{"BearerAuth": []}],
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/sessions/{id}": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Fetch one session",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "put": {
                "tags": ["Sessions"],
                "summary": "Update a session",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {
                "tags": ["Sessions"],
                "summary": "Delete a session",
                "security": [{"BearerAuth": []}],
                "responses": {"204": {"description": "No content"}}
            }
        },
        "/scoring/conditions": {
            "get": {
                "tags": ["Scoring"],
                "summary": "List scoring conditions",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Scoring"],
                "summary": "Create a scoring condition",
                "security": [{"BearerAuth": []}],
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/scoring/conditions/{id}": {
            "get": {
                "tags": ["Scoring"],
                "summary": "Fetch one scoring condition",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "put": {
                "tags": ["Scoring"],
                "summary": "Update a scoring condition",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {
                "tags": ["Scoring"],
                "summary": "Delete a scoring condition",
                "security": [{"BearerAuth": []}],
                "responses": {"204": {"description": "No content"}}
            }
        },
        "/scoring/calculate": {
            "post": {
                "tags": ["Scoring"],
                "summary": "Apply the configured condition to one outcome",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/scoring/history/last": {
            "post": {
                "tags": ["Scoring"],
                "summary": "Fetch the latest applied delta",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "No history"}}
            }
        },
        "/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Queue a score-table export",
                "security": [{"BearerAuth": []}],
                "responses": {"202": {"description": "Accepted"}}
            }
        },
        "/exports/{id}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Report export job progress",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/exports/download": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a finished export artifact",
                "responses": {"200": {"description": "Artifact stream"}}
            }
        }
    },
    "definitions": {
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "Envelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
