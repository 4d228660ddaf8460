package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/toonranks/toonranks/internal/auth"
	"github.com/toonranks/toonranks/internal/series"
)

const maxCoverBytes = 5 << 20

type voteRequest struct {
	Category string `json:"category" form:"category" binding:"required"`
	Score    int    `json:"score" form:"score" binding:"required"`
}

type synopsisRequest struct {
	Synopsis string `json:"synopsis" binding:"required"`
}

func (r *Router) listSeries(c *gin.Context) {
	out, err := r.deps.Series.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) rankings(c *gin.Context) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := queryInt(c, "page_size", 0)
	if !ok {
		return
	}
	out, err := r.deps.Series.Rankings(c.Request.Context(), c.Query("type"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) searchSeries(c *gin.Context) {
	out, err := r.deps.Series.Search(c.Request.Context(), c.Query("query"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) seriesSummary(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := r.deps.Series.Summary(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) createSeries(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCoverBytes+64<<10)

	in := series.CreateInput{
		Title:  c.PostForm("title"),
		Genre:  c.PostForm("genre"),
		Type:   c.PostForm("type"),
		Status: c.PostForm("status"),
		Author: c.PostForm("author"),
		Artist: c.PostForm("artist"),
	}
	var cover *series.Cover
	if f, err := readFormFile(c, "cover", maxCoverBytes); err == nil {
		cover = &series.Cover{Filename: f.Filename, ContentType: f.ContentType, Data: f.Data}
	} else if err != errMissingFile {
		respondError(c, err)
		return
	}

	out, err := r.deps.Series.Create(c.Request.Context(), auth.CurrentUser(c), in, cover)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) updateSeries(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in series.UpdateInput
	if !bindJSON(c, &in) {
		return
	}
	out, err := r.deps.Series.Update(c.Request.Context(), auth.CurrentUser(c), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) deleteSeries(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := r.deps.Series.Delete(c.Request.Context(), auth.CurrentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) seriesDetail(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := r.deps.Series.Detail(c.Request.Context(), auth.CurrentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// vote accepts either a JSON body or form fields
func (r *Router) vote(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req voteRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	out, err := r.deps.Series.Vote(c.Request.Context(), auth.CurrentUser(c), id, req.Category, req.Score)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) setSynopsis(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req synopsisRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := r.deps.Series.SetSynopsis(c.Request.Context(), auth.CurrentUser(c), id, req.Synopsis)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
