package handlers

import (
	"net/http"

	"smokehouse/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	errListBackups   = "failed to list backups"
	errWriteBackup   = "failed to write backup"
	errRestoreBackup = "failed to restore backup"
	errAssign        = "failed to assign sensors"
	errAutoDetect    = "failed to detect sensors"
	errRemount       = "failed to remount storage"
)

// RestoreRequest names the backup file to apply.
type RestoreRequest struct {
	Name string `json:"name" binding:"required" example:"config_3600.bak"`
}

// AssignRequest maps logical channels to bus indices.
type AssignRequest struct {
	Chamber *int `json:"chamber" binding:"required" example:"0"`
	Meat    *int `json:"meat" binding:"required" example:"1"`
}

// RemountRequest optionally formats the partition.
type RemountRequest struct {
	Format bool `json:"format"`
}

// @Summary      List backups
// @Tags         maintenance
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, backups"
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/backups [get]
// @Security     BearerAuth
func (h *Handler) listBackups(c *gin.Context) {
	names, err := h.services.Maintenance.ListBackups(c.Request.Context())
	if err != nil {
		h.respondError(c, errListBackups, "backups_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(names), "backups": names})
}

// @Summary      Write backup now
// @Tags         maintenance
// @Produce      json
// @Success      200  {object}  map[string]string  "name"
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/backups [post]
// @Security     BearerAuth
func (h *Handler) writeBackup(c *gin.Context) {
	name, err := h.services.Maintenance.WriteBackup(c.Request.Context())
	if err != nil {
		h.respondError(c, errWriteBackup, "backup_write_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name})
}

// @Summary      Restore backup
// @Description  Applies the profile path and network name from a backup file.
// @Tags         maintenance
// @Accept       json
// @Produce      json
// @Param        body  body      RestoreRequest  true  "Backup name"
// @Success      200   {object}  models.BackupRecord
// @Failure      400   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/backups/restore [post]
// @Security     BearerAuth
func (h *Handler) restoreBackup(c *gin.Context) {
	var req RestoreRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	rec, err := h.services.Maintenance.RestoreBackup(c.Request.Context(), req.Name)
	if err != nil {
		h.respondError(c, errRestoreBackup, "backup_restore_failed", err, "name", req.Name)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// @Summary      Assign sensor roles
// @Tags         sensors
// @Accept       json
// @Produce      json
// @Param        body  body      AssignRequest  true  "Bus indices"
// @Success      200   {object}  models.SensorAssignment
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/sensors/assign [post]
// @Security     BearerAuth
func (h *Handler) assignSensors(c *gin.Context) {
	var req AssignRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	a := models.SensorAssignment{Chamber: *req.Chamber, Meat: *req.Meat}
	if err := h.services.Maintenance.AssignSensors(c.Request.Context(), a); err != nil {
		h.respondError(c, errAssign, "sensors_assign_failed", err, "chamber", a.Chamber, "meat", a.Meat)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary      Auto-detect sensors
// @Description  Restores the default assignment.
// @Tags         sensors
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Router       /api/v1/sensors/autodetect [post]
// @Security     BearerAuth
func (h *Handler) autoDetectSensors(c *gin.Context) {
	if err := h.services.Maintenance.AutoDetectSensors(c.Request.Context()); err != nil {
		h.respondError(c, errAutoDetect, "sensors_autodetect_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// @Summary      Remount flash storage
// @Tags         maintenance
// @Accept       json
// @Produce      json
// @Param        body  body      RemountRequest  false  "Format before mounting"
// @Success      200   {object}  flash.Info
// @Failure      503   {object}  map[string]interface{}
// @Router       /api/v1/storage/remount [post]
// @Security     BearerAuth
func (h *Handler) remountStorage(c *gin.Context) {
	var req RemountRequest
	if c.Request.ContentLength > 0 && !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	info, err := h.services.Maintenance.Remount(c.Request.Context(), req.Format)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("storage_remount_failed", "format", req.Format, "err", err)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errRemount, "flash": info})
		return
	}
	c.JSON(http.StatusOK, info)
}
