package models

// CheckpointStage names a point inside one row's processing where pending
// pause and cancel requests are checked.
type CheckpointStage string

const (
	CheckpointBeforeRow          CheckpointStage = "before_row"
	CheckpointBeforeCloudResolve CheckpointStage = "before_cloud_resolve"
	CheckpointAfterCloudResolve  CheckpointStage = "after_cloud_resolve"
	CheckpointBeforeDownload     CheckpointStage = "before_download"
	CheckpointAfterDownload      CheckpointStage = "after_download"
	CheckpointBeforeImageProcess CheckpointStage = "before_image_process"
	CheckpointAfterImageProcess  CheckpointStage = "after_image_process"
	CheckpointBeforeSlideUpdate  CheckpointStage = "before_slide_update"
	CheckpointAfterSlideUpdate   CheckpointStage = "after_slide_update"
	CheckpointBeforePersistState CheckpointStage = "before_persist_state"
)
