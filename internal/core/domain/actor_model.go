package domain

const (
	ACTOR_ID_CONTROL = "control"
)

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
	Version string
	// Outcome of the last finished iteration, empty before the first one
	LastOutcome Outcome
}

type RunIterationRequest struct {
	ActorRequestMixIn
}

type RunIterationResponse struct {
	ActorResponseMixIn
	Report Report
}

type GetLimitStateRequest struct {
	ActorRequestMixIn
}

type GetLimitStateResponse struct {
	ActorResponseMixIn
	State LimitState
}
