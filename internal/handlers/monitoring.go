package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"hostwatch/internal/alerts"
	"hostwatch/internal/logger"
	"hostwatch/internal/policy"
)

type configResponse struct {
	Success         bool       `json:"success"`
	Config          policy.Set `json:"config"`
	AvailableMounts []string   `json:"available_mount_points"`
	Message         string     `json:"message,omitempty"`
}

// getConfig returns the active set; mounts without configuration are shown
// with their default policy.
func (a *API) getConfig(w http.ResponseWriter, _ *http.Request) {
	mounts := a.policies.Mounts()
	writeJSON(w, http.StatusOK, configResponse{
		Success:         true,
		Config:          a.policies.Get().WithMountDefaults(mounts),
		AvailableMounts: mounts,
	})
}

type configRequest struct {
	Config json.RawMessage `json:"config"`
}

// putConfig replaces the set. A null or missing config restores the
// defaults. Fields absent from the body keep their current value, except
// disk_usage, which when present replaces the mount list wholesale.
func (a *API) putConfig(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	var req configRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if len(req.Config) == 0 || string(req.Config) == "null" {
		set, err := a.policies.Reset(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("policy reset failed")
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		log.Info().Msg("monitoring configuration reset to defaults")
		a.monitor.Trigger()
		writeJSON(w, http.StatusOK, configResponse{
			Success:         true,
			Config:          set,
			AvailableMounts: a.policies.Mounts(),
			Message:         "configuration reset to defaults",
		})
		return
	}

	next, err := mergeConfig(a.policies.Get(), req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}

	if err := a.policies.Put(r.Context(), next); err != nil {
		if errors.Is(err, alerts.ErrInvalidPolicy) {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Message: "invalid configuration",
				Errors:  policy.FieldErrors(err),
			})
			return
		}
		log.Error().Err(err).Msg("policy update failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Msg("monitoring configuration updated")
	a.monitor.Trigger()
	writeJSON(w, http.StatusOK, configResponse{
		Success:         true,
		Config:          a.policies.Get(),
		AvailableMounts: a.policies.Mounts(),
		Message:         "configuration saved",
	})
}

func (a *API) getStatus(w http.ResponseWriter, _ *http.Request) {
	set := a.policies.Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"global_enabled":      set.GlobalEnabled,
		"monitoring_interval": set.MonitoringInterval,
	})
}

type statusRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *API) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if _, err := a.policies.SetGlobalEnabled(r.Context(), req.Enabled); err != nil {
		log := logger.WithComponent("api")
		log.Error().Err(err).Msg("toggle monitoring failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	msg := "monitoring disabled"
	if req.Enabled {
		msg = "monitoring enabled"
	}
	log := logger.WithComponent("api")
	log.Info().Bool("enabled", req.Enabled).Msg(msg)
	a.monitor.Trigger()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"enabled": req.Enabled,
		"message": msg,
	})
}

// mergeConfig decodes raw over cur. A disk_usage object lists every mount to
// keep; each listed mount is decoded over its current policy, or the default
// disk policy for a new mount.
func mergeConfig(cur policy.Set, raw json.RawMessage) (policy.Set, error) {
	var disks struct {
		Disk map[string]json.RawMessage `json:"disk_usage"`
	}
	if err := json.Unmarshal(raw, &disks); err != nil {
		return cur, err
	}

	next := cur.Clone()
	if err := json.Unmarshal(raw, &next); err != nil {
		return cur, err
	}
	prev := cur.Clone().Disk
	if disks.Disk == nil {
		next.Disk = prev
		return next, nil
	}

	next.Disk = make(map[string]alerts.Policy, len(disks.Disk))
	for mount, b := range disks.Disk {
		p, ok := prev[mount]
		if !ok {
			p = policy.DefaultDiskPolicy()
		}
		if err := json.Unmarshal(b, &p); err != nil {
			return cur, fmt.Errorf("disk_usage[%s]: %w", mount, err)
		}
		next.Disk[mount] = p
	}
	return next, nil
}

type testRequest struct {
	Parameter string `json:"parameter"`
}

// testChannel sends a test notification. "disk_usage" without a mount picks
// the first configured mount.
func (a *API) testChannel(w http.ResponseWriter, r *http.Request) {
	if !a.testLimiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many test notifications, try again later")
		return
	}

	req := testRequest{Parameter: string(alerts.ChannelCPU)}
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	ch, err := a.resolveChannel(req.Parameter, "")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in, err := a.monitor.TestChannel(r.Context(), ch)
	switch {
	case errors.Is(err, alerts.ErrUnknownChannel):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log := logger.WithChannel("api", string(ch))
		log.Error().Err(err).Msg("test notification failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": in.Message(),
		"intent":  in,
	})
}

// resolveChannel maps an API metric name plus optional mount to a channel.
func (a *API) resolveChannel(metric, mount string) (alerts.Channel, error) {
	metric = strings.TrimSpace(metric)
	if metric == string(alerts.MetricDisk) {
		if mount == "" {
			mounts := make([]string, 0)
			for m := range a.policies.Get().Disk {
				mounts = append(mounts, m)
			}
			if len(mounts) == 0 {
				return "", fmt.Errorf("%w: no disk mount configured", alerts.ErrUnknownChannel)
			}
			sort.Strings(mounts)
			mount = mounts[0]
		}
		return alerts.DiskChannel(mount), nil
	}
	return alerts.ParseChannel(metric)
}

func (a *API) currentMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"metrics": a.monitor.Current(r.Context()),
	})
}

func (a *API) debug(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"debug_info": a.monitor.Debug(),
	})
}
