package domain

// FileType represents the allowed file types for upload.
type FileType string

const (
	FileTypePDF FileType = "pdf"
)

// AllowedFileTypes maps FileType to its MIME content type.
var AllowedFileTypes = map[FileType]string{
	FileTypePDF: "application/pdf",
}

// AllowedContentTypes maps MIME content types back to FileType.
var AllowedContentTypes = map[string]FileType{
	"application/pdf": FileTypePDF,
}

// AllowedExtensions maps file extensions (without dot) to FileType.
var AllowedExtensions = map[string]FileType{
	"pdf": FileTypePDF,
}

// PageLabel classifies what a drawing sheet depicts.
type PageLabel string

const (
	PageLabelFloorPlan PageLabel = "floor_plan"
	PageLabelElevation PageLabel = "elevation"
	PageLabelSection   PageLabel = "section"
	PageLabelSchedule  PageLabel = "schedule"
	PageLabelSite      PageLabel = "site"
	PageLabelSystems   PageLabel = "systems"
	PageLabelOther     PageLabel = "other"
)

// TextSource records where a page's text came from.
type TextSource string

const (
	TextSourceLayer TextSource = "layer"
	TextSourceOCR   TextSource = "ocr"
	TextSourceNone  TextSource = "none"
)

// CandidateSource identifies the extraction path that produced a candidate.
type CandidateSource string

const (
	SourceGeometry CandidateSource = "geometry"
	SourceText     CandidateSource = "text"
	SourceVision   CandidateSource = "vision"
)

// ScaleMethod records how a drawing scale was resolved.
type ScaleMethod string

const (
	ScaleMethodNotation  ScaleMethod = "notation"
	ScaleMethodDimension ScaleMethod = "dimension"
	ScaleMethodPageSize  ScaleMethod = "page_size"
	ScaleMethodOverride  ScaleMethod = "override"
)

// Orientation is a cardinal compass direction. Window areas and solar
// gains are tracked per orientation.
type Orientation string

const (
	OrientationNorth   Orientation = "north"
	OrientationEast    Orientation = "east"
	OrientationSouth   Orientation = "south"
	OrientationWest    Orientation = "west"
	OrientationUnknown Orientation = "unknown"
)

// CardinalOrientations lists the four compass directions in clockwise order.
var CardinalOrientations = []Orientation{
	OrientationNorth,
	OrientationEast,
	OrientationSouth,
	OrientationWest,
}

// BuildingType distinguishes the broad occupancy class of a building.
type BuildingType string

const (
	BuildingTypeResidential BuildingType = "residential"
	BuildingTypeCommercial  BuildingType = "commercial"
	BuildingTypeUnknown     BuildingType = "unknown"
)

// FoundationType describes what the lowest floor sits on.
type FoundationType string

const (
	FoundationSlab       FoundationType = "slab"
	FoundationCrawlspace FoundationType = "crawlspace"
	FoundationBasement   FoundationType = "basement"
	FoundationUnknown    FoundationType = "unknown"
)

// ComponentType identifies one contribution to a room's load.
type ComponentType string

const (
	ComponentWall         ComponentType = "wall"
	ComponentCeiling      ComponentType = "ceiling"
	ComponentWindow       ComponentType = "window"
	ComponentInfiltration ComponentType = "infiltration"
	ComponentInternal     ComponentType = "internal"
	ComponentSolar        ComponentType = "solar"
)

// JobStatus represents the lifecycle of a load calculation job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// PipelineStage tracks how far a job has progressed through the pipeline.
type PipelineStage string

const (
	StageClassifying PipelineStage = "classifying"
	StageExtracting  PipelineStage = "extracting"
	StageReconciling PipelineStage = "reconciling"
	StageCalculating PipelineStage = "calculating"
	StageDone        PipelineStage = "done"
	StageFailed      PipelineStage = "failed"
)
