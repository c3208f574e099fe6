// SPDX-License-Identifier: MIT

package reolink

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// MockServer provides a configurable Reolink device mock for testing.
type MockServer struct {
	*httptest.Server
	mu           sync.RWMutex
	username     string
	password     string
	tokens       map[string]bool
	tokenCounter int
	leaseTime    int
	revokeNext   bool

	searches   []SearchResult
	searchIdx  int
	deviceTime DeviceTime
	channels   []ChannelStatus
	snapData   []byte
	clipData   map[string][]byte

	// LoginCount tracks how many Login commands were served.
	LoginCount int
	// SearchRequests records the raw Search params seen, in order.
	SearchRequests []searchRequest
}

// NewMockServer creates a mock device with default data.
func NewMockServer() *MockServer {
	m := &MockServer{
		username:  "admin",
		password:  "secret",
		tokens:    map[string]bool{},
		leaseTime: 3600,
		clipData:  map[string][]byte{},
		snapData:  []byte{0xFF, 0xD8, 0xFF, 0xE0, 'j', 'p', 'g'},
		deviceTime: DeviceTime{
			Time: TimeInfo{
				TimeTable: TimeTable{Year: 2023, Mon: 5, Day: 12, Hour: 12, Min: 0, Sec: 0},
				TimeZone:  -7200, // UTC+2
			},
		},
		channels: []ChannelStatus{{Channel: 0, Name: "Front Door", Online: true}},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/api.cgi", m.handleAPI)
	m.Server = httptest.NewServer(mux)
	return m
}

// SetCredentials changes the accepted login.
func (m *MockServer) SetCredentials(user, pass string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.username, m.password = user, pass
}

// QueueSearchResult appends a result served for the next Search command.
func (m *MockServer) QueueSearchResult(res SearchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, res)
}

// SetDeviceTime overrides the GetTime reply.
func (m *MockServer) SetDeviceTime(dt DeviceTime) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceTime = dt
}

// SetChannels overrides the GetChannelstatus reply.
func (m *MockServer) SetChannels(chs []ChannelStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = chs
}

// SetClip registers downloadable clip bytes under a device file name.
func (m *MockServer) SetClip(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clipData[name] = data
}

// RevokeTokens invalidates all issued tokens, as a device reboot would.
func (m *MockServer) RevokeTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = map[string]bool{}
}

func (m *MockServer) handleAPI(w http.ResponseWriter, r *http.Request) {
	cmd := r.URL.Query().Get("cmd")
	switch cmd {
	case "Snap":
		m.handleSnap(w, r)
		return
	case "Playback":
		m.handlePlayback(w, r)
		return
	}

	var cmds []struct {
		Cmd   string          `json:"cmd"`
		Param json.RawMessage `json:"param"`
	}
	if err := json.NewDecoder(r.Body).Decode(&cmds); err != nil || len(cmds) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch cmds[0].Cmd {
	case "Login":
		m.handleLogin(w, cmds[0].Param)
	case "Logout":
		writeReplies(w, []reply{{Cmd: "Logout", Code: 0}})
	default:
		if !m.validToken(r.URL.Query().Get("token")) {
			writeReplies(w, []reply{{
				Cmd: cmds[0].Cmd, Code: 1,
				Error: &cmdError{RspCode: rspCodeLoginExpired, Detail: "please login first"},
			}})
			return
		}
		switch cmds[0].Cmd {
		case "Search":
			m.handleSearch(w, cmds[0].Param)
		case "GetTime":
			m.mu.RLock()
			dt := m.deviceTime
			m.mu.RUnlock()
			writeValue(w, "GetTime", dt)
		case "GetChannelstatus":
			m.mu.RLock()
			v := channelStatusValue{Count: len(m.channels), Status: m.channels}
			m.mu.RUnlock()
			writeValue(w, "GetChannelstatus", v)
		default:
			writeReplies(w, []reply{{
				Cmd: cmds[0].Cmd, Code: 1,
				Error: &cmdError{RspCode: rspCodeNotSupported, Detail: "not support"},
			}})
		}
	}
}

func (m *MockServer) handleLogin(w http.ResponseWriter, raw json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoginCount++

	var p loginParam
	_ = json.Unmarshal(raw, &p)
	if p.User.UserName != m.username || p.User.Password != m.password {
		writeReplies(w, []reply{{
			Cmd: "Login", Code: 1,
			Error: &cmdError{RspCode: rspCodeLoginFailed, Detail: "login failed"},
		}})
		return
	}
	m.tokenCounter++
	token := "tok-" + strconv.Itoa(m.tokenCounter)
	m.tokens[token] = true

	var v loginValue
	v.Token.Name = token
	v.Token.LeaseTime = m.leaseTime
	writeValue(w, "Login", v)
}

func (m *MockServer) validToken(token string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return token != "" && m.tokens[token]
}

func (m *MockServer) handleSearch(w http.ResponseWriter, raw json.RawMessage) {
	var p searchParam
	_ = json.Unmarshal(raw, &p)

	m.mu.Lock()
	m.SearchRequests = append(m.SearchRequests, p.Search)
	var res SearchResult
	if m.searchIdx < len(m.searches) {
		res = m.searches[m.searchIdx]
		m.searchIdx++
	} else {
		res = SearchResult{Channel: p.Search.Channel}
	}
	m.mu.Unlock()

	writeValue(w, "Search", searchResultValue{SearchResult: res})
}

func (m *MockServer) handleSnap(w http.ResponseWriter, r *http.Request) {
	if !m.validToken(r.URL.Query().Get("token")) {
		w.Header().Set("Content-Type", "application/json")
		writeReplies(w, []reply{{Cmd: "Snap", Code: 1, Error: &cmdError{RspCode: rspCodeLoginExpired, Detail: "please login first"}}})
		return
	}
	m.mu.RLock()
	data := m.snapData
	m.mu.RUnlock()
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(data)
}

func (m *MockServer) handlePlayback(w http.ResponseWriter, r *http.Request) {
	if !m.validToken(r.URL.Query().Get("token")) {
		w.Header().Set("Content-Type", "application/json")
		writeReplies(w, []reply{{Cmd: "Playback", Code: 1, Error: &cmdError{RspCode: rspCodeLoginExpired, Detail: "please login first"}}})
		return
	}
	m.mu.RLock()
	data, ok := m.clipData[r.URL.Query().Get("source")]
	m.mu.RUnlock()
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		writeReplies(w, []reply{{Cmd: "Playback", Code: 1, Error: &cmdError{RspCode: rspCodeNotExist, Detail: "file not exist"}}})
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	_, _ = w.Write(data)
}

func writeReplies(w http.ResponseWriter, replies []reply) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(replies)
}

func writeValue(w http.ResponseWriter, cmd string, v any) {
	raw, _ := json.Marshal(v)
	writeReplies(w, []reply{{Cmd: cmd, Code: 0, Value: raw}})
}
