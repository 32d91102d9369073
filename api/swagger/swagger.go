package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "OBE Engine API",
        "description": "Outcome-based education attainment engine",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Outcomes", "description": "Outcome hierarchy (PEO, PLO, CLO) management"},
        {"name": "Assessments", "description": "Assessment items and mark allocations"},
        {"name": "Scores", "description": "Student score ingestion"},
        {"name": "Attainment", "description": "Attainment computation and overrides"},
        {"name": "Thresholds", "description": "Attainment level threshold bands"},
        {"name": "Summaries", "description": "Cohort, trend, and student summaries"},
        {"name": "Jobs", "description": "Recompute and export jobs"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/api/v1/outcomes": {
            "get": {
                "tags": ["Outcomes"],
                "summary": "List outcomes",
                "parameters": [
                    {"name": "tier", "in": "query", "type": "string", "enum": ["PEO", "PLO", "CLO"]},
                    {"name": "scopeId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Outcomes"],
                "summary": "Create outcome",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateOutcomeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/outcomes/{id}": {
            "get": {
                "tags": ["Outcomes"],
                "summary": "Get outcome",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Outcomes"],
                "summary": "Update outcome description",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateOutcomeDescriptionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Outcomes"],
                "summary": "Delete outcome and cascade dependents",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Cascade counts", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/outcomes/mappings": {
            "put": {
                "tags": ["Outcomes"],
                "summary": "Set child-to-parent outcome mapping",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetMappingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Cycle or tier conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/outcomes/{id}/children": {
            "get": {
                "tags": ["Outcomes"],
                "summary": "List mapped children with weights",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/outcomes/{id}/parents": {
            "get": {
                "tags": ["Outcomes"],
                "summary": "List mapped parents with weights",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/assessment-items": {
            "get": {
                "tags": ["Assessments"],
                "summary": "List assessment items for a course offering",
                "parameters": [
                    {"name": "courseOfferingId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Assessments"],
                "summary": "Create assessment item",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAssessmentItemRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/assessment-items/{id}/total": {
            "put": {
                "tags": ["Assessments"],
                "summary": "Update an item's total marks",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateItemTotalRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Allocations exceed new total", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/assessment-items/{id}/allocations": {
            "get": {
                "tags": ["Assessments"],
                "summary": "Get mark allocations for an item",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Assessments"],
                "summary": "Replace mark allocations for an item",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetAllocationsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Allocation total exceeds item marks", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/scores": {
            "post": {
                "tags": ["Scores"],
                "summary": "Ingest student scores",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IngestScoresRequest"}}
                ],
                "responses": {
                    "200": {"description": "Stored count", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/attainment/{outcomeId}": {
            "get": {
                "tags": ["Attainment"],
                "summary": "Get attainment for an outcome",
                "parameters": [
                    {"name": "outcomeId", "in": "path", "required": true, "type": "string"},
                    {"name": "kind", "in": "query", "required": true, "type": "string", "enum": ["STUDENT", "COHORT"]},
                    {"name": "subjectId", "in": "query", "type": "string"},
                    {"name": "strategy", "in": "query", "type": "string", "enum": ["marks-first", "student-first"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/attainment/overrides": {
            "post": {
                "tags": ["Attainment"],
                "summary": "Override an attainment value",
                "parameters": [
                    {"name": "X-Actor-Id", "in": "header", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OverrideRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/attainment/{outcomeId}/overrides": {
            "get": {
                "tags": ["Attainment"],
                "summary": "List override history for an outcome",
                "parameters": [
                    {"name": "outcomeId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/thresholds/defaults": {
            "get": {
                "tags": ["Thresholds"],
                "summary": "Program default threshold bands",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/thresholds/{outcomeId}": {
            "get": {
                "tags": ["Thresholds"],
                "summary": "Resolve effective threshold bands",
                "parameters": [
                    {"name": "outcomeId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Thresholds"],
                "summary": "Set per-outcome threshold bands",
                "parameters": [
                    {"name": "outcomeId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetThresholdsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Thresholds"],
                "summary": "Clear per-outcome bands, reverting to defaults",
                "parameters": [
                    {"name": "outcomeId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Cleared"}
                }
            }
        },
        "/api/v1/summaries/courses/{courseOfferingId}": {
            "get": {
                "tags": ["Summaries"],
                "summary": "Course offering CLO attainment summary",
                "parameters": [
                    {"name": "courseOfferingId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/summaries/programs/{programId}": {
            "get": {
                "tags": ["Summaries"],
                "summary": "Program PLO or PEO attainment summary",
                "parameters": [
                    {"name": "programId", "in": "path", "required": true, "type": "string"},
                    {"name": "tier", "in": "query", "type": "string", "enum": ["PLO", "PEO"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/summaries/programs/{programId}/trend": {
            "get": {
                "tags": ["Summaries"],
                "summary": "Program PLO attainment across periods",
                "parameters": [
                    {"name": "programId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/summaries/students/{studentId}": {
            "get": {
                "tags": ["Summaries"],
                "summary": "Per-student CLO attainment grouped by course",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/recompute": {
            "post": {
                "tags": ["Jobs"],
                "summary": "Request attainment recompute for a scope",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecomputeRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Stale scope", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/jobs/{id}": {
            "get": {
                "tags": ["Jobs"],
                "summary": "Get job status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/exports": {
            "post": {
                "tags": ["Jobs"],
                "summary": "Request a summary export (CSV or PDF)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/exports/download/{token}": {
            "get": {
                "tags": ["Jobs"],
                "summary": "Download a finished export by signed token",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "produces": ["text/csv", "application/pdf"],
                "responses": {
                    "200": {"description": "File"},
                    "404": {"description": "Expired or unknown token"}
                }
            }
        }
    },
    "definitions": {
        "CreateOutcomeRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "tier": {"type": "string", "enum": ["PEO", "PLO", "CLO"]},
                "description": {"type": "string"},
                "scopeId": {"type": "string"}
            },
            "required": ["code", "tier", "scopeId"]
        },
        "UpdateOutcomeDescriptionRequest": {
            "type": "object",
            "properties": {
                "description": {"type": "string"}
            },
            "required": ["description"]
        },
        "SetMappingRequest": {
            "type": "object",
            "properties": {
                "childId": {"type": "string"},
                "parentId": {"type": "string"},
                "weight": {"type": "number"}
            },
            "required": ["childId", "parentId"]
        },
        "CreateAssessmentItemRequest": {
            "type": "object",
            "properties": {
                "courseOfferingId": {"type": "string"},
                "name": {"type": "string"},
                "totalMarks": {"type": "number"}
            },
            "required": ["courseOfferingId", "name", "totalMarks"]
        },
        "UpdateItemTotalRequest": {
            "type": "object",
            "properties": {
                "totalMarks": {"type": "number"}
            },
            "required": ["totalMarks"]
        },
        "SetAllocationsRequest": {
            "type": "object",
            "properties": {
                "allocations": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "cloId": {"type": "string"},
                            "marks": {"type": "number"}
                        }
                    }
                }
            },
            "required": ["allocations"]
        },
        "IngestScoresRequest": {
            "type": "object",
            "properties": {
                "scores": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "studentId": {"type": "string"},
                            "assessmentItemId": {"type": "string"},
                            "marksObtained": {"type": "number"}
                        }
                    }
                }
            },
            "required": ["scores"]
        },
        "OverrideRequest": {
            "type": "object",
            "properties": {
                "subjectKind": {"type": "string", "enum": ["STUDENT", "COHORT"]},
                "subjectId": {"type": "string"},
                "outcomeId": {"type": "string"},
                "value": {"type": "number"},
                "reason": {"type": "string"}
            },
            "required": ["subjectKind", "outcomeId", "value", "reason"]
        },
        "SetThresholdsRequest": {
            "type": "object",
            "properties": {
                "bands": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "level": {"type": "string"},
                            "minPercent": {"type": "number"}
                        }
                    }
                }
            },
            "required": ["bands"]
        },
        "RecomputeRequest": {
            "type": "object",
            "properties": {
                "courseOfferingId": {"type": "string"},
                "programId": {"type": "string"},
                "strategy": {"type": "string", "enum": ["marks-first", "student-first"]},
                "period": {"type": "string"}
            }
        },
        "ExportRequest": {
            "type": "object",
            "properties": {
                "courseOfferingId": {"type": "string"},
                "programId": {"type": "string"},
                "tier": {"type": "string", "enum": ["PLO", "PEO"]},
                "format": {"type": "string", "enum": ["csv", "pdf"]}
            },
            "required": ["format"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
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
