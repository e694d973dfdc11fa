package upload

import "strings"

type Purpose string

const (
	// PurposeAsset 素材库，按年月分目录
	PurposeAsset Purpose = "asset"
	// PurposeProjectPhoto 项目成片，contextId 为项目 ID
	PurposeProjectPhoto Purpose = "project_photo"
	// PurposeProjectVideo 项目花絮视频，contextId 为项目 ID
	PurposeProjectVideo Purpose = "project_video"
	// PurposeAvatar 账号头像，contextId 为账号 ID
	PurposeAvatar Purpose = "avatar"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

const (
	MiB int64 = 1024 * 1024
	GiB int64 = 1024 * MiB
)

// Policy 每种上传用途的白名单与大小上限
type Policy struct {
	Prefix        string
	ContextScoped bool
	ContentTypes  map[string]Kind
	MaxBytes      map[Kind]int64
}

var imageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic", "image/heif", "image/tiff"}
var videoTypes = []string{"video/mp4", "video/quicktime", "video/webm"}

func kinds(kind Kind, types ...string) map[string]Kind {
	m := make(map[string]Kind, len(types))
	for _, t := range types {
		m[t] = kind
	}
	return m
}

func merge(ms ...map[string]Kind) map[string]Kind {
	out := map[string]Kind{}
	for _, m := range ms {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

var policies = map[Purpose]Policy{
	PurposeAsset: {
		Prefix:       "assets",
		ContentTypes: merge(kinds(KindImage, imageTypes...), kinds(KindVideo, videoTypes...)),
		MaxBytes:     map[Kind]int64{KindImage: 20 * MiB, KindVideo: 500 * MiB},
	},
	PurposeProjectPhoto: {
		Prefix:        "project-photos",
		ContextScoped: true,
		ContentTypes:  kinds(KindImage, imageTypes...),
		MaxBytes:      map[Kind]int64{KindImage: 50 * MiB},
	},
	PurposeProjectVideo: {
		Prefix:        "project-videos",
		ContextScoped: true,
		ContentTypes:  kinds(KindVideo, videoTypes...),
		MaxBytes:      map[Kind]int64{KindVideo: 2 * GiB},
	},
	PurposeAvatar: {
		Prefix:        "avatars",
		ContextScoped: true,
		ContentTypes:  kinds(KindImage, "image/jpeg", "image/png", "image/webp"),
		MaxBytes:      map[Kind]int64{KindImage: 5 * MiB},
	},
}

func LookupPolicy(p Purpose) (Policy, bool) {
	pol, ok := policies[p]
	return pol, ok
}

func Purposes() []Purpose {
	return []Purpose{PurposeAsset, PurposeProjectPhoto, PurposeProjectVideo, PurposeAvatar}
}

// normalizeContentType 去掉参数部分并转为小写，如 "image/JPEG; q=1" -> "image/jpeg"
func normalizeContentType(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}
