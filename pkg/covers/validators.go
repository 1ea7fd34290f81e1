package covers

import "mime/multipart"

type UploadCoverPayload struct {
	Series string `form:"series" json:"series" validate:"required"`
	Volume int    `form:"volume" json:"volume" validate:"min=0"`

	FormFiles map[string]*multipart.FileHeader `form:"-" json:"-"`
}
