package pyhelpers

// Исходники python-хелперов. Модели живут в python-экосистеме, поэтому Go
// только раскладывает эти скрипты и вызывает их с аргументами.

const textGenPy = `import argparse
import sys

from transformers import pipeline


def main():
    p = argparse.ArgumentParser()
    p.add_argument("--model", required=True)
    p.add_argument("--prompt", required=True)
    p.add_argument("--max-new-tokens", type=int, default=200)
    args = p.parse_args()

    text_gen = pipeline("text-generation", model=args.model, device_map="auto")
    out = text_gen(args.prompt, max_new_tokens=args.max_new_tokens, do_sample=True)
    sys.stdout.write(out[0]["generated_text"])


if __name__ == "__main__":
    main()
`

const diffusionPy = `import argparse

import torch
from diffusers import StableDiffusionPipeline


def main():
    p = argparse.ArgumentParser()
    p.add_argument("--model", required=True)
    p.add_argument("--prompt", required=True)
    p.add_argument("--out", required=True)
    p.add_argument("--lora", default="")
    args = p.parse_args()

    pipe = StableDiffusionPipeline.from_pretrained(args.model, torch_dtype=torch.float16)
    if torch.cuda.is_available():
        device = "cuda"
    elif torch.backends.mps.is_available():
        device = "mps"
    else:
        device = "cpu"
    pipe.to(device)
    if args.lora:
        pipe.load_lora_weights(args.lora)
        pipe.fuse_lora()
    image = pipe(args.prompt).images[0]
    image.save(args.out)


if __name__ == "__main__":
    main()
`

const musicGenPy = `import argparse

from audiocraft.models import MusicGen
from audiocraft.data.audio import audio_write


def main():
    p = argparse.ArgumentParser()
    p.add_argument("--model", required=True)
    p.add_argument("--description", required=True)
    p.add_argument("--duration", type=float, default=30.0)
    p.add_argument("--out", required=True)
    args = p.parse_args()

    model = MusicGen.get_pretrained(args.model)
    model.set_generation_params(duration=args.duration)
    wav = model.generate([args.description], progress=True)
    stem = args.out[:-4] if args.out.endswith(".wav") else args.out
    audio_write(stem, wav[0].cpu(), model.sample_rate, strategy="loudness")


if __name__ == "__main__":
    main()
`
