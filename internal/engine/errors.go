package engine

import (
	"errors"
	"fmt"
)

var (
	ErrSessionFinished = errors.New("session already finished")
	ErrAudioRequired   = errors.New("audio must finish before advancing")
	ErrNoPrevSubItem   = errors.New("no previous sub-item in this chapter")
	ErrUnknownQuestion = errors.New("question does not belong to this test")
	ErrBadTransition   = errors.New("transition not allowed in current phase")
)

// SessionInitError 会话无法启动（试卷不存在或 attempt 创建失败），对调用方致命。
type SessionInitError struct {
	TestID string
	Err    error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("cannot start session for test %s: %v", e.TestID, e.Err)
}

func (e *SessionInitError) Unwrap() error { return e.Err }

// AnswerSaveError 边界批量保存失败。仅记录日志，不阻断导航。
type AnswerSaveError struct {
	AttemptID string
	Err       error
}

func (e *AnswerSaveError) Error() string {
	return fmt.Sprintf("answer save failed for attempt %s: %v", e.AttemptID, e.Err)
}

func (e *AnswerSaveError) Unwrap() error { return e.Err }

// FinalizeError 成绩落库或 attempt 完成标记失败，可重试。
type FinalizeError struct {
	AttemptID string
	Err       error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize failed for attempt %s: %v", e.AttemptID, e.Err)
}

func (e *FinalizeError) Unwrap() error { return e.Err }

// AudioPlaybackError 自动播放被拦截或媒体加载失败，降级为手动播放，从不致命。
type AudioPlaybackError struct {
	PieceID string
	Reason  string
}

func (e *AudioPlaybackError) Error() string {
	return fmt.Sprintf("audio playback issue on piece %s: %s", e.PieceID, e.Reason)
}
