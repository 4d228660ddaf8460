package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/auth"
	"github.com/toonranks/toonranks/internal/forum"
)

type createThreadRequest struct {
	Title             string  `json:"title" binding:"required,notblank"`
	FirstPostMarkdown string  `json:"first_post_markdown" binding:"required,notblank"`
	SeriesIDs         []int64 `json:"series_ids"`
}

type updateThreadRequest struct {
	Title             *string  `json:"title"`
	FirstPostMarkdown *string  `json:"first_post_markdown"`
	SeriesIDs         *[]int64 `json:"series_ids"`
}

type createPostRequest struct {
	ContentMarkdown string  `json:"content_markdown" binding:"required,notblank"`
	SeriesIDs       []int64 `json:"series_ids"`
	ParentID        *int64  `json:"parent_id"`
}

type updatePostRequest struct {
	ContentMarkdown string   `json:"content_markdown" binding:"required,notblank"`
	SeriesIDs       *[]int64 `json:"series_ids"`
}

type lockRequest struct {
	Locked *bool `json:"locked"`
}

type settingsRequest struct {
	LatestFirst *bool `json:"latest_first"`
}

// listParams reads the thread list filters from the query string
func listParams(c *gin.Context) (forum.ListParams, bool) {
	p := forum.ListParams{
		Query:  strings.TrimSpace(c.Query("q")),
		Author: strings.TrimSpace(c.Query("author")),
	}
	var ok bool
	if p.Page, ok = queryInt(c, "page", 1); !ok {
		return p, false
	}
	if p.PageSize, ok = queryInt(c, "page_size", 0); !ok {
		return p, false
	}
	if c.Query("author_id") != "" {
		id, ok := queryInt(c, "author_id", 0)
		if !ok {
			return p, false
		}
		authorID := int64(id)
		p.AuthorID = &authorID
	}
	return p, true
}

func (r *Router) listThreads(c *gin.Context) {
	p, ok := listParams(c)
	if !ok {
		return
	}
	page, err := r.deps.Forum.ListThreads(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page.Items)
}

func (r *Router) listThreadsPaged(c *gin.Context) {
	p, ok := listParams(c)
	if !ok {
		return
	}
	page, err := r.deps.Forum.ListThreads(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (r *Router) createThread(c *gin.Context) {
	var req createThreadRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := r.deps.Forum.CreateThread(c.Request.Context(), auth.CurrentUser(c), forum.CreateThreadInput{
		Title:             req.Title,
		FirstPostMarkdown: req.FirstPostMarkdown,
		SeriesIDs:         req.SeriesIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) getThread(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := r.deps.Forum.GetThread(c.Request.Context(), auth.CurrentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (r *Router) getThreadPaged(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := queryInt(c, "page_size", 0)
	if !ok {
		return
	}
	view, err := r.deps.Forum.GetThreadPaged(c.Request.Context(), auth.CurrentUser(c), id, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (r *Router) updateThread(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateThreadRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := r.deps.Forum.UpdateThread(c.Request.Context(), auth.CurrentUser(c), id, forum.UpdateThreadInput{
		Title:             req.Title,
		FirstPostMarkdown: req.FirstPostMarkdown,
		SeriesIDs:         req.SeriesIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) lockThread(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req lockRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	out, err := r.deps.Forum.SetLocked(c.Request.Context(), auth.CurrentUser(c), id, req.Locked)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) threadSettings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req settingsRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	out, err := r.deps.Forum.SetLatestFirst(c.Request.Context(), auth.CurrentUser(c), id, req.LatestFirst)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) deleteThread(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := r.deps.Forum.DeleteThread(c.Request.Context(), auth.CurrentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) createPost(c *gin.Context) {
	threadID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createPostRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := r.deps.Forum.CreatePost(c.Request.Context(), auth.CurrentUser(c), threadID, forum.CreatePostInput{
		ContentMarkdown: req.ContentMarkdown,
		SeriesIDs:       req.SeriesIDs,
		ParentID:        req.ParentID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// threadAndPost parses the two path ids of post routes
func threadAndPost(c *gin.Context) (int64, int64, bool) {
	threadID, ok := pathID(c, "id")
	if !ok {
		return 0, 0, false
	}
	postID, ok := pathID(c, "post_id")
	if !ok {
		return 0, 0, false
	}
	return threadID, postID, true
}

func (r *Router) updatePost(c *gin.Context) {
	threadID, postID, ok := threadAndPost(c)
	if !ok {
		return
	}
	var req updatePostRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := r.deps.Forum.UpdatePost(c.Request.Context(), auth.CurrentUser(c), threadID, postID, forum.UpdatePostInput{
		ContentMarkdown: req.ContentMarkdown,
		SeriesIDs:       req.SeriesIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) removePost(c *gin.Context, ownerOnly bool) {
	threadID, postID, ok := threadAndPost(c)
	if !ok {
		return
	}
	if err := r.deps.Forum.DeletePost(c.Request.Context(), auth.CurrentUser(c), threadID, postID, ownerOnly); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) deletePost(c *gin.Context)    { r.removePost(c, false) }
func (r *Router) deleteOwnPost(c *gin.Context) { r.removePost(c, true) }

func (r *Router) toggleHeart(c *gin.Context) {
	threadID, postID, ok := threadAndPost(c)
	if !ok {
		return
	}
	res, err := r.deps.Forum.ToggleHeart(c.Request.Context(), auth.CurrentUser(c), threadID, postID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) forumSeriesSearch(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	refs, err := r.deps.Forum.SearchSeries(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, refs)
}

func (r *Router) uploadMedia(c *gin.Context) {
	maxBytes := r.deps.Media.MaxUploadBytes()
	// leave room for the multipart envelope and the other fields
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+64<<10)

	threadID, err := formInt(c, "thread_id", true)
	if err != nil {
		respondError(c, err)
		return
	}
	postID, err := formInt(c, "post_id", false)
	if err != nil {
		respondError(c, err)
		return
	}
	file, err := readFormFile(c, "file", maxBytes)
	if err != nil {
		respondError(c, err)
		return
	}

	in := mediaUpload(*threadID, postID, file)
	res, err := r.deps.Media.Upload(c.Request.Context(), auth.CurrentUser(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// errMissingFile is returned when a multipart request lacks its file part
var errMissingFile = apperr.ValidationField("file", "file is required")
