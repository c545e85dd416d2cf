package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	buildeventdomain "github.com/xtages/console/internal/buildevent/domain"
	"github.com/xtages/console/internal/orgcontext"
)

type startBuildRequest struct {
	ProjectID   string `json:"project_id"`
	UserID      int64  `json:"user_id"`
	Environment string `json:"environment"`
	CommitHash  string `json:"commit_hash"`
	BuildArn    string `json:"build_arn"`
}

// StartBuild records a build the caller has just submitted to CodeBuild.
func (s *Server) StartBuild(c *gin.Context) {
	var req startBuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	projectID, err := snowflake.ParseString(strings.TrimSpace(req.ProjectID))
	if err != nil {
		AbortWithError(c, newValidationError("project_id", "invalid_project_id", "invalid project id"))
		return
	}

	name, _ := orgcontext.OrganizationNameFromContext(c.Request.Context())
	build, err := s.buildsvc.RecordBuildStarted(c.Request.Context(), buildeventdomain.BuildStart{
		OrganizationName: name,
		ProjectID:        projectID,
		UserID:           req.UserID,
		Environment:      req.Environment,
		CommitHash:       strings.TrimSpace(req.CommitHash),
		BuildArn:         req.BuildArn,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, build)
}
