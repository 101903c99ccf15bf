package queue

const (
	TypeTryonProcess = "tryon:process"
)

type TryonProcessPayload struct {
	TryonID     string `json:"tryon_id"`
	SubjectPath string `json:"subject_path"`
	GarmentPath string `json:"garment_path"`
}
