package detection

import (
	"time"

	"MinoriAI/internal/entity"
	"MinoriAI/internal/session"
)

// WebSocket message types.
const (
	MessageFrame      = "frame"
	MessageAnalyzeNow = "analyze_now"
	MessageCrop       = "crop"
	MessageResult     = "result"
	MessageStatus     = "status"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// ProcessFrameRequest is the JSON body of POST /process-frame. Frame is a
// data URL or bare base64 image.
type ProcessFrameRequest struct {
	Frame    string `json:"frame" form:"frame" validate:"required"`
	Crop     string `json:"crop" form:"crop" validate:"required,oneof=rice wheat"`
	ClientID string `json:"client_id" form:"client_id" validate:"omitempty,max=128"`
}

type DetectionResponse struct {
	Success         bool     `json:"success"`
	ClientID        string   `json:"client_id,omitempty"`
	Crop            string   `json:"crop"`
	DetectedDisease string   `json:"detected_disease"`
	DisplayName     string   `json:"display_name"`
	IsHealthy       bool     `json:"is_healthy"`
	Solution        string   `json:"solution"`
	Known           bool     `json:"known"`
	Cached          bool     `json:"cached"`
	Sources         []string `json:"sources,omitempty"`
	ProcessingTime  float64  `json:"processing_time"`
	Error           string   `json:"error,omitempty"`
}

// NewDetectionResponse flattens an analysis outcome into the shape the web
// front end renders. processing is reported in seconds.
func NewDetectionResponse(clientID string, d entity.DetectionResult, advice *entity.AdvisoryEntry, cached bool, processing time.Duration) DetectionResponse {
	resp := DetectionResponse{
		Success:         true,
		ClientID:        clientID,
		Crop:            d.Crop.Title(),
		DetectedDisease: d.Label,
		DisplayName:     d.DisplayName(),
		IsHealthy:       d.IsHealthy,
		Cached:          cached,
		ProcessingTime:  processing.Seconds(),
	}
	if advice != nil {
		resp.Solution = advice.Text
		resp.Known = advice.Known
		resp.Sources = advice.Sources
	}
	return resp
}

func ResponseFromOutcome(clientID string, out session.Outcome, processing time.Duration) DetectionResponse {
	return NewDetectionResponse(clientID, out.Detection, out.Advice, out.Cached, processing)
}

// InboundMessage is anything the browser sends on the real-time socket.
type InboundMessage struct {
	Type  string `json:"type"`
	Frame string `json:"frame,omitempty"`
	Crop  string `json:"crop,omitempty"`
}

type OutboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type StatusPayload struct {
	State   session.State `json:"state"`
	Level   session.Level `json:"level"`
	Message string        `json:"message"`
}

type AdvisoryRequest struct {
	Crop    string `json:"crop" validate:"required,oneof=rice wheat"`
	Disease string `json:"disease" validate:"required,max=128"`
}

type AdvisoryResponse struct {
	Crop           string   `json:"crop"`
	Disease        string   `json:"disease"`
	Question       string   `json:"question"`
	Solution       string   `json:"solution"`
	Known          bool     `json:"known"`
	Sources        []string `json:"sources,omitempty"`
	ProcessingTime float64  `json:"processing_time"`
}

type CropInfo struct {
	Name   string   `json:"name"`
	Title  string   `json:"title"`
	Labels []string `json:"labels"`
}

type CropsResponse struct {
	Crops []CropInfo `json:"crops"`
}

type DetectionsQuery struct {
	ClientID string `query:"client_id" validate:"omitempty,max=128"`
	Limit    int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

type DetectionsResponse struct {
	Detections []entity.DetectionRecord `json:"detections"`
	Count      int                      `json:"count"`
}
