package config

// Trial 单轮试验：示例图、输入图、输出图以及该轮需要回答的题号
type Trial struct {
	ExampleImage string `json:"example_image"`
	InputImage   string `json:"input_image"`
	OutputImage  string `json:"output_image"`
	Questions    []int  `json:"questions"`
}

// TrialConfig 试验组与控制组各自的试验序列
type TrialConfig struct {
	Trials        []Trial `json:"trials"`
	ControlTrials []Trial `json:"control_trials"`
}

// Arm 按分组返回试验序列，非 experiment 一律按控制组处理
func (t *TrialConfig) Arm(group string) []Trial {
	if group == "experiment" {
		return t.Trials
	}
	return t.ControlTrials
}

func questionRange(from, to int) []int {
	qs := make([]int, 0, to-from+1)
	for q := from; q <= to; q++ {
		qs = append(qs, q)
	}
	return qs
}

// DefaultTrials 实验配置，编译进程序
func DefaultTrials() *TrialConfig {
	return &TrialConfig{
		Trials: []Trial{
			{ExampleImage: "image1.png", InputImage: "image2.png", OutputImage: "image3.png", Questions: questionRange(6, 15)},
			{ExampleImage: "image4.png", InputImage: "image5.png", OutputImage: "image6.png", Questions: questionRange(17, 26)},
			{ExampleImage: "image7.png", InputImage: "image7.png", OutputImage: "image8.png", Questions: questionRange(28, 37)},
			{ExampleImage: "image9.png", InputImage: "image9.png", OutputImage: "image10.jpeg", Questions: questionRange(39, 48)},
		},
		ControlTrials: []Trial{
			{ExampleImage: "image1.png", InputImage: "image2.png", OutputImage: "image3.png", Questions: questionRange(50, 59)},
			// 第二轮控制组比其它轮多一道题
			{ExampleImage: "image4.png", InputImage: "image4.png", OutputImage: "image6.png", Questions: questionRange(62, 72)},
			{ExampleImage: "image11.jpeg", InputImage: "image11.jpeg", OutputImage: "image12.jpeg", Questions: questionRange(75, 84)},
			{ExampleImage: "image13.jpeg", InputImage: "image13.jpeg", OutputImage: "image10.jpeg", Questions: questionRange(87, 96)},
		},
	}
}
