package util

// 实验分组
const (
	GroupExperiment = "experiment"
	GroupControl    = "control"
)

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
	SessionCookie = "cookie"
)

const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveMinio = "minio"
	ArchiveOSS   = "oss"
)

// ParticipantIDLength 参与者编号取 UUID 前 8 位
const ParticipantIDLength = 8

// FallbackControlInstruction 控制组 previous_instructions 长度不足时展示的文案
const FallbackControlInstruction = "示例指令"

// FallbackInstructions 尚无试验组数据时控制组使用的示例指令
var FallbackInstructions = []string{
	"一个未来感十足的机器人，银色金属质感，面部有蓝色发光线条，背景是科技实验室",
	"卡通风格的可爱动物角色，毛茸茸的质感，大眼睛，温馨的森林背景",
	"抽象艺术风格的人形轮廓，混合了机械和生物元素，霓虹色彩",
	"简约设计的智能家居设备，白色光滑表面，柔和的室内灯光",
}
