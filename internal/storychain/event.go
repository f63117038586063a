package storychain

import "github.com/kwento-games/kwento/internal/evaluator"

// Inbound message types accepted by the gateway.
const (
	MsgTypePlayerJoin     = "player_join"
	MsgTypeSubmitSentence = "submit_sentence"
)

type InboundMessage struct {
	Type   string `json:"type"`
	Player string `json:"player"`
	Text   string `json:"text"`
}

type playersUpdateEvent struct {
	Type    string   `json:"type"`
	Players []string `json:"players"`
}

func newPlayersUpdate(players []string) playersUpdateEvent {
	return playersUpdateEvent{Type: "players_update", Players: players}
}

type gameStartEvent struct {
	Type string `json:"type"`
}

func newGameStart() gameStartEvent {
	return gameStartEvent{Type: "game_start"}
}

type newImageEvent struct {
	Type             string `json:"type"`
	ImageIndex       int    `json:"image_index"`
	TotalImages      int    `json:"total_images"`
	ImageURL         string `json:"image_url"`
	ImageDescription string `json:"image_description"`
}

func newNewImage(index, total int, prompt Prompt) newImageEvent {
	return newImageEvent{
		Type:             "new_image",
		ImageIndex:       index,
		TotalImages:      total,
		ImageURL:         prompt.ImageURL,
		ImageDescription: prompt.Description,
	}
}

type turnUpdateEvent struct {
	Type       string `json:"type"`
	NextPlayer string `json:"next_player"`
	TimeLimit  int    `json:"time_limit"`
}

func newTurnUpdate(nextPlayer string, timeLimitSecs int) turnUpdateEvent {
	return turnUpdateEvent{Type: "turn_update", NextPlayer: nextPlayer, TimeLimit: timeLimitSecs}
}

type storyUpdateEvent struct {
	Type   string `json:"type"`
	Player string `json:"player"`
	Text   string `json:"text"`
}

func newStoryUpdate(player, text string) storyUpdateEvent {
	return storyUpdateEvent{Type: "story_update", Player: player, Text: text}
}

type timeoutEvent struct {
	Type    string `json:"type"`
	Player  string `json:"player"`
	Penalty int    `json:"penalty"`
}

func newTimeoutEvent(player string, penalty int) timeoutEvent {
	return timeoutEvent{Type: "timeout_event", Player: player, Penalty: penalty}
}

type sentenceEvaluationEvent struct {
	Type     string            `json:"type"`
	Sentence string            `json:"sentence"`
	Score    int               `json:"score"`
	Verdict  evaluator.Verdict `json:"verdict"`
}

func newSentenceEvaluation(sentence string, score int, verdict evaluator.Verdict) sentenceEvaluationEvent {
	return sentenceEvaluationEvent{Type: "sentence_evaluation", Sentence: sentence, Score: score, Verdict: verdict}
}

type gameCompleteEvent struct {
	Type   string         `json:"type"`
	Scores map[string]int `json:"scores"`
}

func newGameComplete(scores map[string]int) gameCompleteEvent {
	return gameCompleteEvent{Type: "game_complete", Scores: scores}
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newErrorEvent(message string) errorEvent {
	return errorEvent{Type: "error", Message: message}
}
