package model

// TrainingUser is one account as the recommender sees it when retraining.
type TrainingUser struct {
	ID        uint64   `json:"id"`
	Favorites []uint64 `json:"favorites"`
	Interests []string `json:"interests"`
	Values    []string `json:"values"`
	Goals     []string `json:"goals"`
}

// TrainingSet is the payload of a retrain request: the whole catalog and
// every student with their favorites and profile.
type TrainingSet struct {
	Modules []Module       `json:"modules"`
	Users   []TrainingUser `json:"users"`
}
