package handlers

import (
	"net/http"
	"strconv"

	"github.com/camden-git/mediagallery/workers"
)

// MonitorEnqueuer accepts background folder scans.
type MonitorEnqueuer interface {
	Enqueue(job workers.MonitorJob) bool
}

type MonitorHandler struct {
	Queue MonitorEnqueuer
}

// TriggerScan queues a folder-monitor pass over the caller's directory.
// ?rescan=true also revisits albums that are already imported.
func (mh *MonitorHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	rescan, _ := strconv.ParseBool(r.URL.Query().Get("rescan"))
	job := workers.MonitorJob{UserID: currentUserID(r), Rescan: rescan}
	if !mh.Queue.Enqueue(job) {
		WriteAPIError(w, http.StatusConflict, "scan_pending", "A scan is already pending for this user")
		return
	}
	writeOK(w, http.StatusAccepted, "Scan queued", job)
}
