package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/PaweMed/weathermap-sprinkler/internal/program"
	"github.com/PaweMed/weathermap-sprinkler/internal/settings"
	"github.com/PaweMed/weathermap-sprinkler/internal/zone"
)

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorw("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

var errBadZoneCommand = errors.New("web: zone command needs {id, toggle} or {zone, state}")

// errorCode maps domain errors onto HTTP statuses.
func errorCode(err error) int {
	switch {
	case errors.Is(err, zone.ErrInvalidZone), errors.Is(err, program.ErrInvalidProgram):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleZonesGet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.gw.Zones(s.now()))
}

// zoneCommand is the POST /api/zones body. The canonical form is
// {id, toggle:true}; {zone, state} with an optional duration in seconds
// addresses one direction explicitly. Pointer fields tell an absent key
// from a zero value.
type zoneCommand struct {
	ID          *int  `json:"id"`
	Toggle      bool  `json:"toggle"`
	Zone        *int  `json:"zone"`
	State       *bool `json:"state"`
	DurationSec int   `json:"duration,omitempty"`
}

func (s *Server) handleZonesPost(w http.ResponseWriter, r *http.Request) {
	var cmd zoneCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	now := s.now()
	var err error
	switch {
	case cmd.Toggle && cmd.ID != nil:
		err = s.gw.ToggleZone(*cmd.ID, now)
	case cmd.Zone != nil && cmd.State != nil && *cmd.State:
		err = s.gw.StartZone(*cmd.Zone, time.Duration(cmd.DurationSec)*time.Second, now)
	case cmd.Zone != nil && cmd.State != nil:
		err = s.gw.StopZone(*cmd.Zone, now)
	default:
		s.writeError(w, http.StatusBadRequest, errBadZoneCommand)
		return
	}
	if err != nil {
		s.writeError(w, errorCode(err), err)
		return
	}
	s.writeJSON(w, s.gw.Zones(now))
}

// namesDoc wraps the name list the way firmware-era clients expect.
type namesDoc struct {
	Names []string `json:"names"`
}

func (s *Server) handleNamesGet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, namesDoc{Names: s.gw.ZoneNames()})
}

func (s *Server) handleNamesPost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	// {"names":[...]} is canonical; a bare array is accepted too.
	var doc namesDoc
	if err := json.Unmarshal(body, &doc); err != nil || doc.Names == nil {
		if err := json.Unmarshal(body, &doc.Names); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	s.gw.SetZoneNames(doc.Names)
	s.writeJSON(w, namesDoc{Names: s.gw.ZoneNames()})
}

func (s *Server) handleProgramsGet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.gw.Programs())
}

func (s *Server) handleProgramAdd(w http.ResponseWriter, r *http.Request) {
	var rec program.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.gw.AddProgram(rec); err != nil {
		s.writeError(w, errorCode(err), err)
		return
	}
	s.writeJSON(w, s.gw.Programs())
}

func (s *Server) handleProgramsClear(w http.ResponseWriter, r *http.Request) {
	s.gw.ClearPrograms()
	s.writeJSON(w, s.gw.Programs())
}

func (s *Server) handleProgramsImport(w http.ResponseWriter, r *http.Request) {
	var recs []program.Record
	if err := json.NewDecoder(r.Body).Decode(&recs); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.gw.ImportPrograms(recs); err != nil {
		s.writeError(w, errorCode(err), err)
		return
	}
	s.writeJSON(w, s.gw.Programs())
}

func (s *Server) handleProgramEdit(w http.ResponseWriter, r *http.Request) {
	idx, _ := strconv.Atoi(mux.Vars(r)["id"])

	var patch program.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.gw.EditProgram(idx, patch); err != nil {
		s.writeError(w, errorCode(err), err)
		return
	}
	s.writeJSON(w, s.gw.Programs())
}

func (s *Server) handleProgramDelete(w http.ResponseWriter, r *http.Request) {
	idx, _ := strconv.Atoi(mux.Vars(r)["id"])

	if err := s.gw.RemoveProgram(idx); err != nil {
		s.writeError(w, errorCode(err), err)
		return
	}
	s.writeJSON(w, s.gw.Programs())
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.gw.Weather())
}

func (s *Server) handleRainHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.gw.RainHistory(s.now()))
}

func (s *Server) handleWateringPercent(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.gw.WateringPercent(s.now()))
}

func (s *Server) handleLogsGet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.gw.Logs())
}

func (s *Server) handleLogsClear(w http.ResponseWriter, r *http.Request) {
	s.gw.ClearLogs()
	s.writeJSON(w, s.gw.Logs())
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.gw.SettingsPublic())
}

func (s *Server) handleSettingsPost(w http.ResponseWriter, r *http.Request) {
	var in settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	eff := s.gw.ReplaceSettings(in)
	s.writeJSON(w, eff.Public())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.gw.Status(s.now()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}
