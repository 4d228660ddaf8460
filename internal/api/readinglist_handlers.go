package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/toonranks/toonranks/internal/auth"
)

type createListRequest struct {
	Name string `json:"name" binding:"required,notblank,max=50"`
}

type addItemRequest struct {
	SeriesID int64 `json:"series_id" binding:"required"`
}

func (r *Router) myReadingLists(c *gin.Context) {
	out, err := r.deps.ReadingLists.Mine(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) createReadingList(c *gin.Context) {
	var req createListRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := r.deps.ReadingLists.Create(c.Request.Context(), auth.CurrentUser(c), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (r *Router) addReadingListItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req addItemRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := r.deps.ReadingLists.AddItem(c.Request.Context(), auth.CurrentUser(c), id, req.SeriesID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) removeReadingListItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	seriesID, ok := pathID(c, "series_id")
	if !ok {
		return
	}
	out, err := r.deps.ReadingLists.RemoveItem(c.Request.Context(), auth.CurrentUser(c), id, seriesID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) deleteReadingList(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := r.deps.ReadingLists.Delete(c.Request.Context(), auth.CurrentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
