package analysis

// AlertLevel 诊断提示级别。
type AlertLevel string

const (
	AlertNormal  AlertLevel = "normal"
	AlertWarning AlertLevel = "warning"
	AlertAlert   AlertLevel = "alert"
)

type VolumeAnalysis struct {
	TotalVolume float64 `json:"total_volume"`
	GrayMatter  float64 `json:"gray_matter"`
	WhiteMatter float64 `json:"white_matter"`
	CSF         float64 `json:"csf"`
	Abnormal    bool    `json:"abnormal"`
}

type LesionDetection struct {
	LesionsCount int     `json:"lesions_count"`
	TotalVolume  float64 `json:"total_volume"`
	Confidence   float64 `json:"confidence"`
	Abnormal     bool    `json:"abnormal"`
}

type MotionDetection struct {
	HasArtifact bool    `json:"has_artifact"`
	Severity    string  `json:"severity"`
	Confidence  float64 `json:"confidence"`
	Abnormal    bool    `json:"abnormal"`
}

// Mesh is a triangle mesh for the 3D viewer.
type Mesh struct {
	Vertices [][3]float64 `json:"vertices"`
	Faces    [][3]int     `json:"faces"`
}

type VisualizationData struct {
	BrainMesh  *Mesh `json:"brain_mesh,omitempty"`
	LesionMesh *Mesh `json:"lesion_mesh,omitempty"`
}

// Result 医学影像分析结果。
type Result struct {
	Diagnosis         string            `json:"diagnosis"`
	AlertLevel        AlertLevel        `json:"alert_level"`
	VolumeAnalysis    VolumeAnalysis    `json:"volume_analysis"`
	LesionDetection   LesionDetection   `json:"lesion_detection"`
	MotionDetection   MotionDetection   `json:"motion_detection"`
	Abnormalities     []string          `json:"abnormalities"`
	VisualizationData VisualizationData `json:"visualization_data"`
}

// HasLesionMesh mirrors the viewer rule: the lesion mesh is shown only when
// lesions were found and a mesh was delivered.
func (r Result) HasLesionMesh() bool {
	return r.LesionDetection.LesionsCount > 0 && r.VisualizationData.LesionMesh != nil
}

// Envelope 分析接口统一返回结构。
type Envelope struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	TaskID  string  `json:"task_id,omitempty"`
	Results *Result `json:"results,omitempty"`
}

// Report 导出的分析报告。
type Report struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Format  string `json:"format"`
	Content string `json:"content"`
}
