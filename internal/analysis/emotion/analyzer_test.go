package emotion

import "testing"

func TestAnalyze(t *testing.T) {
	cases := []struct {
		name  string
		user  string
		reply string
		want  Label
	}{
		{name: "apology comforts", user: "why did my upload break", reply: "Sorry, the upload failed because the file was too large.", want: Comfort},
		{name: "success is happy", user: "status?", reply: "Your report is done and ready to download.", want: Happy},
		{name: "warnings are serious", user: "anything else", reply: "Make sure you stay under the storage quota.", want: Magnetic},
		{name: "flat reply answers frustrated user", user: "I'm stuck and frustrated", reply: "Let's look at the logs together.", want: Comfort},
		{name: "nothing to go on", user: "what is a pipeline", reply: "A pipeline chains processing steps.", want: Neutral},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Analyze(tc.user, tc.reply)
			if got.Emotion != tc.want {
				t.Fatalf("Analyze() emotion = %s, want %s", got.Emotion, tc.want)
			}
			if got.Scale < 1 || got.Scale > 5 {
				t.Fatalf("scale out of range: %f", got.Scale)
			}
		})
	}
}

func TestAnalyzeExclamationsBoostExcitement(t *testing.T) {
	got := Analyze("", "Wow, congratulations!!!")
	if got.Emotion != Excited {
		t.Fatalf("expected excited, got %s", got.Emotion)
	}
	if got.Scale < 4 {
		t.Fatalf("expected boosted scale, got %f", got.Scale)
	}
}
