package handlers

import (
	"net/http"

	"smokehouse/internal/storage"

	"github.com/gin-gonic/gin"
)

const (
	statusSaved    = "saved"
	statusSelected = "selected"

	errListProfiles  = "failed to list profiles"
	errGetProfile    = "failed to read profile"
	errSaveProfile   = "failed to save profile"
	errSelectProfile = "failed to select profile"
)

// SelectRequest names the profile to activate.
type SelectRequest struct {
	// Local file name, absolute /profiles path, or github:<name>
	Path string `json:"path" binding:"required" example:"ham.prof"`
}

// @Summary      List profiles
// @Description  A failed remote listing returns 502 with the label entry the device shows.
// @Tags         profiles
// @Produce      json
// @Param        source  query     string  false  "Profile source"  Enums(local,remote)
// @Success      200     {object}  map[string]interface{}  "source, profiles"
// @Failure      400     {object}  map[string]string
// @Failure      401     {object}  map[string]string
// @Failure      502     {object}  map[string]interface{}
// @Router       /api/v1/profiles [get]
// @Security     BearerAuth
func (h *Handler) listProfiles(c *gin.Context) {
	source := c.DefaultQuery("source", "local")
	names, err := h.services.Profiles.List(c.Request.Context(), source)
	if err != nil {
		if len(names) > 0 {
			if h.log != nil {
				h.log.Warnw("profiles_list_degraded", "source", source, "err", err)
			}
			c.JSON(http.StatusBadGateway, gin.H{"source": source, "profiles": names, "error": errListProfiles})
			return
		}
		h.respondError(c, errListProfiles, "profiles_list_failed", err, "source", source)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": source, "profiles": names})
}

// @Summary      Get profile steps
// @Tags         profiles
// @Produce      json
// @Param        name  path      string  true  "Profile file name"  example(ham.prof)
// @Success      200   {object}  map[string]interface{}  "name, steps"
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/profiles/{name} [get]
// @Security     BearerAuth
func (h *Handler) getProfile(c *gin.Context) {
	name := c.Param("name")
	steps, err := h.services.Profiles.Get(c.Request.Context(), name)
	if err != nil {
		h.respondError(c, errGetProfile, "profile_get_failed", err, "name", name)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "steps": steps})
}

// @Summary      Save profile
// @Description  Steps are clamped to the configured limits before writing.
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        name  path      string              true  "Profile file name"
// @Param        body  body      []storage.StepData  true  "Steps"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/profiles/{name} [put]
// @Security     BearerAuth
func (h *Handler) saveProfile(c *gin.Context) {
	name := c.Param("name")
	var steps []storage.StepData
	if !h.bindJSONOrBadRequest(c, &steps) {
		return
	}
	if err := h.services.Profiles.Save(c.Request.Context(), name, steps); err != nil {
		h.respondError(c, errSaveProfile, "profile_save_failed", err, "name", name)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusSaved, "name": name})
}

// @Summary      Select active profile
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        body  body      SelectRequest  true  "Profile path"
// @Success      200   {object}  map[string]interface{}  "status, profile, steps"
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/profiles/select [post]
// @Security     BearerAuth
func (h *Handler) selectProfile(c *gin.Context) {
	var req SelectRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	prof, err := h.services.Profiles.Select(c.Request.Context(), req.Path)
	if err != nil {
		h.respondError(c, errSelectProfile, "profile_select_failed", err, "path", req.Path)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusSelected, "profile": prof.Name, "steps": prof.Len()})
}
